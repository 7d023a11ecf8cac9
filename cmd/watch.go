package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/dqcheck/pkg/extractor"
	"github.com/xhad/dqcheck/pkg/pipeline"
	"github.com/xhad/dqcheck/pkg/watcher"
)

const watchLockName = ".dqcheck-watch.lock"

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var checklistPath, user string

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Evaluate documents as they are added to a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			info, err := os.Stat(dir)
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}

			lock, err := watcher.Lock(filepath.Join(dir, watchLockName))
			if err != nil {
				return err
			}
			defer lock.Unlock()

			svc, err := buildServices(cmd.Context(), ctx.config, ctx.logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			w, err := watcher.NewWithConfig(watcher.WatcherConfig{
				Extensions: extractor.SupportedExtensions(),
				Logger:     ctx.logger,
			})
			if err != nil {
				return err
			}
			defer w.Close()

			paths, err := w.Watch(cmd.Context(), dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, color.CyanString("Watching %s (Ctrl+C to stop)", dir))

			// Runs are sequential; the index is shared across documents.
			for path := range paths {
				fmt.Fprintln(out, color.BlueString("\nEvaluating %s", filepath.Base(path)))
				bar := newStageBar(cmd.ErrOrStderr())
				rep, err := svc.pipeline.Run(cmd.Context(), pipeline.Request{
					JobID:         newJobID(),
					FilePath:      path,
					ChecklistPath: checklistPath,
					User:          user,
					Observer:      bar,
				})
				bar.Finish()
				if err != nil {
					ctx.logger.Error("Evaluation failed", slog.String("path", path), slog.String("error", err.Error()))
					fmt.Fprintln(out, color.RedString("✗ %s: %v", filepath.Base(path), err))
					continue
				}
				printReport(out, rep, ctx.config.Paths.ReportDir)
			}
			return cmd.Context().Err()
		},
	}

	cmd.Flags().StringVar(&checklistPath, "checklist", "", "Checklist JSON file (defaults to evaluation.checklist_path)")
	cmd.Flags().StringVar(&user, "user", "watcher", "User recorded in the audit log")
	return cmd
}
