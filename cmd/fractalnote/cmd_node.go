package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"fractalnote/internal/domain"
	"fractalnote/internal/service"
)

// readContent resolves --content and --content-file into one value
func (a *app) readContent(cmd *cobra.Command, content, file string) (*string, error) {
	if file == "" {
		if cmd.Flags().Changed("content") {
			return &content, nil
		}
		return nil, nil
	}
	if cmd.Flags().Changed("content") {
		return nil, domain.InvalidArgumentf("--content and --content-file are exclusive")
	}

	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(a.in)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	s := string(data)
	return &s, nil
}

func newCreateCmd(a *app) *cobra.Command {
	var (
		parent      int64
		sequence    int
		content     string
		contentFile string
		rich        bool
		token       string
	)

	cmd := &cobra.Command{
		Use:     "create TITLE",
		Aliases: []string{"add"},
		Short:   "Create a node",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := a.readContent(cmd, content, contentFile)
			if err != nil {
				return err
			}

			req := service.CreateRequest{ParentID: parent, Title: args[0], Sequence: sequence, IsRich: rich}
			if body != nil {
				req.Content = *body
			}

			return a.withNotes(cmd.Context(), false, func(notes *service.Notes) error {
				tok, err := a.token(cmd.Context(), notes, token)
				if err != nil {
					return err
				}
				res, err := notes.Create(cmd.Context(), tok, req)
				if err != nil {
					return err
				}
				a.printResult(res, true)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.Int64VarP(&parent, "parent", "p", domain.RootID, "father node (0 for top level)")
	f.IntVar(&sequence, "seq", 0, "position among siblings")
	f.StringVarP(&content, "content", "c", "", "node body")
	f.StringVar(&contentFile, "content-file", "", "read the body from a file (- for stdin)")
	f.BoolVar(&rich, "rich", false, "create a rich text node (not editable here)")
	f.StringVarP(&token, "token", "t", "", "version token of the store")
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var (
		title       string
		content     string
		contentFile string
		token       string
	)

	cmd := &cobra.Command{
		Use:     "update ID",
		Aliases: []string{"edit"},
		Short:   "Change a node's title or body",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			req := service.UpdateRequest{ID: id}
			if cmd.Flags().Changed("title") {
				req.Title = &title
			}
			if req.Content, err = a.readContent(cmd, content, contentFile); err != nil {
				return err
			}
			if req.Title == nil && req.Content == nil {
				return domain.InvalidArgumentf("nothing to update: pass --title or --content")
			}

			return a.mutateNode(cmd, token, req)
		},
	}

	f := cmd.Flags()
	f.StringVar(&title, "title", "", "new title")
	f.StringVarP(&content, "content", "c", "", "new body")
	f.StringVar(&contentFile, "content-file", "", "read the new body from a file (- for stdin)")
	f.StringVarP(&token, "token", "t", "", "version token of the store")
	return cmd
}

func newMoveCmd(a *app) *cobra.Command {
	var (
		parent   int64
		sequence int
		token    string
	)

	cmd := &cobra.Command{
		Use:     "move ID",
		Aliases: []string{"mv"},
		Short:   "Move a node and its subtree under another father",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			req := service.UpdateRequest{ID: id, NewParentID: &parent}
			if cmd.Flags().Changed("seq") {
				req.Sequence = &sequence
			}
			return a.mutateNode(cmd, token, req)
		},
	}

	f := cmd.Flags()
	f.Int64VarP(&parent, "parent", "p", domain.RootID, "new father node (0 for top level)")
	f.IntVar(&sequence, "seq", 0, "position among the new siblings (default keeps the current one)")
	f.StringVarP(&token, "token", "t", "", "version token of the store")
	_ = cmd.MarkFlagRequired("parent")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a node and its whole subtree",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			return a.withNotes(cmd.Context(), false, func(notes *service.Notes) error {
				tok, err := a.token(cmd.Context(), notes, token)
				if err != nil {
					return err
				}
				res, err := notes.Delete(cmd.Context(), tok, id)
				if err != nil {
					return err
				}
				a.printResult(res, false)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "version token of the store")
	return cmd
}

func (a *app) mutateNode(cmd *cobra.Command, token string, req service.UpdateRequest) error {
	return a.withNotes(cmd.Context(), false, func(notes *service.Notes) error {
		tok, err := a.token(cmd.Context(), notes, token)
		if err != nil {
			return err
		}
		res, err := notes.Update(cmd.Context(), tok, req)
		if err != nil {
			return err
		}
		a.printResult(res, false)
		return nil
	})
}
