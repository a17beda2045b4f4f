package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"fractalnote/internal/domain"
	"fractalnote/internal/service"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init [ROOT-TITLE]",
		Short: "Create the store and its first top-level node",
		Long: `Create the configured store file if needed and add a first top-level
node (titled "Root" unless given). A store that already holds nodes is left
untouched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := "Root"
			if len(args) == 1 {
				title = args[0]
			}

			return a.withNotes(cmd.Context(), true, func(notes *service.Notes) error {
				res, err := notes.Init(cmd.Context(), title)
				if errors.Is(err, domain.ErrNoChanges) {
					fmt.Fprintln(a.err, "store already initialised")
					a.printResult(res, false)
					return nil
				}
				if err != nil {
					return err
				}
				a.printResult(res, true)
				return nil
			})
		},
	}
}

func newTokenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print the store's current version token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withNotes(cmd.Context(), false, func(notes *service.Notes) error {
				tok, err := notes.Token(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, tok)
				return nil
			})
		},
	}
}

func newFsckCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "fsck",
		Short: "Check the stored tree for broken invariants",
		Long: `Check that every node hangs from the root through existing fathers, that
levels match depths and that attachments belong to rich text nodes. Exits
with status 6 when anything is wrong.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withNotes(cmd.Context(), false, func(notes *service.Notes) error {
				violations, err := notes.Verify(cmd.Context())
				if err != nil {
					return err
				}

				if format == "text" {
					for _, v := range violations {
						fmt.Fprintln(a.out, v)
					}
				} else if err := exportViolations(a.out, format, violations); err != nil {
					return err
				}

				if len(violations) > 0 {
					return fmt.Errorf("%d problem(s) found: %w", len(violations), domain.ErrLogicViolation)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json or yaml")
	return cmd
}
