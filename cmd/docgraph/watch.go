package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/docgraph"
	"github.com/brunobiangulo/docgraph/watch"
)

func newWatchCmd(a *app, flags *globalFlags) *cobra.Command {
	var initial bool
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Load documents from a directory as they are created or changed",
		Long: `Watch a directory tree and run the pipeline on every document whose
content changed. Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}

			ctx := cmd.Context()
			if err := a.startMetrics(flags.metricsAddr); err != nil {
				return err
			}
			s, err := a.openSink(ctx)
			if err != nil {
				return err
			}
			p, err := a.newPipeline()
			if err != nil {
				return err
			}
			if err := a.ensureConstraints(ctx); err != nil {
				return err
			}

			src := a.textSource()
			out := cmd.OutOrStdout()
			w, err := watch.New(watch.Config{
				Extensions:  a.cfg.Watch.Extensions,
				Debounce:    a.cfg.Watch.Debounce,
				CacheSize:   a.cfg.Watch.CacheSize,
				InitialScan: initial,
			}, func(ctx context.Context, path string) error {
				res := p.RunDocument(ctx, src, path, s)
				if err := printResult(out, res, false); err != nil {
					slog.Warn("watch: writing result", "error", err)
				}
				if res.Status == docgraph.StatusOK || res.Status == docgraph.StatusNoTriples {
					return nil
				}
				return fmt.Errorf("%s: %w", res.Status, res.Err)
			})
			if err != nil {
				return err
			}
			return w.Run(ctx, dir)
		},
	}
	cmd.Flags().BoolVar(&initial, "initial", true, "process documents already in the directory")
	return cmd
}
