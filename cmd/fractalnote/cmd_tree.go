package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"fractalnote/internal/codec"
	"fractalnote/internal/domain"
	"fractalnote/internal/service"
	"fractalnote/internal/store"
)

func newTreeCmd(a *app) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:     "tree",
		Aliases: []string{"ls", "export"},
		Short:   "Print the note hierarchy",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withNotes(cmd.Context(), false, func(notes *service.Notes) error {
				tree, tok, err := notes.BuildTree(cmd.Context())
				if err != nil {
					return err
				}

				var buf bytes.Buffer
				if format == "text" {
					writeOutline(&buf, tree, tok)
				} else {
					c, err := codec.ForFormat(format)
					if err != nil {
						return err
					}
					if err := c.Export(codec.NewDocument(tree, tok), &buf); err != nil {
						return err
					}
				}

				if output == "" || output == "-" {
					_, err = a.out.Write(buf.Bytes())
					return err
				}
				if err := atomic.WriteFile(output, &buf); err != nil {
					return fmt.Errorf("write %s: %w", output, err)
				}
				a.log.Info().Str("file", output).Int("nodes", tree.Len()).Msg("tree exported")
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout (replaced atomically)")
	return cmd
}

// writeOutline renders the tree as an indented list of "id title" lines
func writeOutline(w io.Writer, tree *domain.Tree, tok store.Token) {
	fmt.Fprintf(w, "# token %s\n", tok)
	tree.Walk(func(tn *domain.TreeNode, depth int) bool {
		marks := ""
		if tn.IsRich {
			marks += " [rich]"
		}
		if tn.IsReadOnly {
			marks += " [ro]"
		}
		fmt.Fprintf(w, "%s%d %s%s\n", strings.Repeat("  ", depth), tn.ID, tn.Title, marks)
		return true
	})
	for _, o := range tree.Orphans {
		fmt.Fprintf(w, "! %d %s (father %d missing)\n", o.ID, o.Title, o.FatherID)
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Print one node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			return a.withNotes(cmd.Context(), false, func(notes *service.Notes) error {
				n, err := notes.FindNode(cmd.Context(), id)
				if err != nil {
					return err
				}
				enc := yaml.NewEncoder(a.out)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(n)
			})
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	var (
		format string
		parent int64
		token  string
	)

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Add an exported or hand-written outline under a node",
		Long: `Read a tree in JSON or YAML (as written by "fractalnote tree -f yaml") and
create its nodes under --parent, keeping their order. Only titles, bodies and
the rich text flag are taken from the file; ids and levels are assigned by
the store. Use "-" to read standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" {
				format = strings.TrimPrefix(filepath.Ext(args[0]), ".")
			}
			c, err := codec.ForFormat(format)
			if err != nil {
				return err
			}

			var r io.Reader = a.in
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			doc, err := c.Parse(r)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
			}

			return a.withNotes(cmd.Context(), false, func(notes *service.Notes) error {
				tok, err := a.token(cmd.Context(), notes, token)
				if err != nil {
					return err
				}
				res, n, err := importNodes(cmd, notes, tok, parent, doc.Roots)
				if err != nil {
					return fmt.Errorf("imported %d node(s) before failing: %w", n, err)
				}
				fmt.Fprintf(a.out, "imported %d\n", n)
				a.printResult(res, false)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "input format (default from the file extension)")
	cmd.Flags().Int64VarP(&parent, "parent", "p", domain.RootID, "node to import under (0 for top level)")
	cmd.Flags().StringVarP(&token, "token", "t", "", "version token of the store")
	return cmd
}

type importItem struct {
	parent int64
	seq    int
	node   *domain.TreeNode
}

// importNodes creates the outline breadth-first, threading each new token
// into the next create.
func importNodes(cmd *cobra.Command, notes *service.Notes, tok store.Token, parent int64, roots []*domain.TreeNode) (service.Result, int, error) {
	res := service.Result{Token: tok}
	queue := make([]importItem, 0, len(roots))
	for i, tn := range roots {
		queue = append(queue, importItem{parent: parent, seq: i, node: tn})
	}

	created := 0
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]

		r, err := notes.Create(cmd.Context(), res.Token, service.CreateRequest{
			ParentID: it.parent,
			Title:    it.node.Title,
			Sequence: it.seq,
			Content:  it.node.Body,
			IsRich:   it.node.IsRich,
		})
		if err != nil {
			return res, created, err
		}
		res = r
		created++

		for i, child := range it.node.Children {
			queue = append(queue, importItem{parent: r.ID, seq: i, node: child})
		}
	}
	return res, created, nil
}

func exportViolations(w io.Writer, format string, violations []domain.Violation) error {
	c, err := codec.ForFormat(format)
	if err != nil {
		return err
	}
	return c.Export(&codec.Document{Roots: []*domain.TreeNode{}, Violations: violations}, w)
}
