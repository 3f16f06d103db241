package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/watch"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <dir>",
		Short: "Ingest files as they appear in a directory",
		Long: `Watch a directory and ingest every file with an allowed extension
(watch.extensions) once it has been quiet for watch.debounce. Nodes are tagged
source=<file name> and the store is saved after each file. A file written
again replaces the nodes of its previous version.

Examples:
  ragstore watch ~/inbox`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				ctx := cmd.Context()
				w, err := watch.NewWatcher(args[0], a.store, watch.Config{
					Debounce:   a.cfg.Watch.Debounce.Duration(),
					Extensions: a.cfg.Watch.Extensions,
				}, a.logger.Underlying())
				if err != nil {
					return err
				}
				defer w.Stop()

				if err := w.Start(ctx); err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for {
					select {
					case <-ctx.Done():
						return nil
					case r := <-w.Results():
						if r.Err != nil {
							a.logger.Error(ctx, "ingest failed", zap.String("path", r.Path), zap.Error(r.Err))
							continue
						}
						if len(r.Replaced) == 0 {
							fmt.Fprintf(out, "%s: %d chunks\n", r.Path, len(r.IDs))
							continue
						}
						// AddDocument saved before the old nodes were deleted
						if err := a.persist(ctx); err != nil {
							a.logger.Error(ctx, "saving store", zap.Error(err))
						}
						fmt.Fprintf(out, "%s: %d chunks (replaced %d)\n", r.Path, len(r.IDs), len(r.Replaced))
					}
				}
			})
		},
	}
}
