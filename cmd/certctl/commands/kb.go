package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"certregistry/internal/labelkb"
	labelstore "certregistry/internal/labelkb/store"
	"certregistry/pkg/requestcontext"
)

func kbCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Manage the label knowledge base",
	}
	cmd.AddCommand(kbValidateCommand(), kbImportCommand())
	return cmd
}

func kbValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a label seed file for parse errors and collisions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := readSeed(cmd, args[0])
			if err != nil {
				return err
			}
			out(cmd).Success("%s: %d labels, no collisions", args[0], idx.Len())
			return nil
		},
	}
}

func kbImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Validate a label seed file and upsert it into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := readSeed(cmd, args[0])
			if err != nil {
				return err
			}
			a, ctx, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, a.Logger)
			if err := requireDatabase(a); err != nil {
				return err
			}

			store := labelstore.NewPostgres(a.DB)
			err = a.Runner.RunInTx(ctx, func(ctx context.Context) error {
				if err := store.Upsert(ctx, idx.Entries(), requestcontext.Now(ctx)); err != nil {
					return err
				}
				// The merged set must still be collision free.
				all, err := store.LoadAll(ctx)
				if err != nil {
					return err
				}
				_, err = labelkb.NewIndex(all)
				return err
			})
			if err != nil {
				reportCollisions(cmd, err)
				return fmt.Errorf("import %s: %w", args[0], err)
			}
			a.Logger.InfoContext(ctx, "label seed imported",
				"log_type", "audit",
				"event", "labels_imported",
				"file", args[0],
				"entries", idx.Len(),
				"actor", requestcontext.Actor(ctx),
			)
			out(cmd).Success("imported %d labels from %s", idx.Len(), args[0])
			return nil
		},
	}
}

// readSeed parses and indexes a seed file, listing every collision on
// failure rather than only the first.
func readSeed(cmd *cobra.Command, path string) (*labelkb.Index, error) {
	if err := fileExists(path); err != nil {
		return nil, err
	}
	entries, err := labelkb.LoadYAML(path)
	if err != nil {
		return nil, err
	}
	idx, err := labelkb.NewIndex(entries)
	if err != nil {
		if reportCollisions(cmd, err) {
			return nil, fmt.Errorf("%s is not a valid knowledge base", path)
		}
		return nil, err
	}
	return idx, nil
}

func reportCollisions(cmd *cobra.Command, err error) bool {
	var conflict *labelkb.ConflictError
	if !errors.As(err, &conflict) {
		return false
	}
	p := out(cmd)
	for _, c := range conflict.Collisions {
		p.Failure("%q claimed by %v", c.Term, c.Keys)
	}
	return true
}
