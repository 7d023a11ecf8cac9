package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/pkg/checklist"
	"github.com/xhad/dqcheck/pkg/jobs"
	"github.com/xhad/dqcheck/pkg/pipeline"
	"github.com/xhad/dqcheck/server"
)

func newJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func newEvaluateCommand(ctx *commandContext) *cobra.Command {
	var checklistPath, user, mode string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "evaluate <path|url>",
		Short: "Evaluate a document or course page against a checklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *ctx.config
			if mode != "" {
				if _, err := models.ParseEvaluationMode(mode); err != nil {
					return err
				}
				cfg.Evaluation.Mode = mode
			}

			svc, err := buildServices(cmd.Context(), &cfg, ctx.logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			bar := newStageBar(cmd.ErrOrStderr())
			rep, err := svc.pipeline.Run(cmd.Context(), pipeline.Request{
				JobID:         newJobID(),
				FilePath:      args[0],
				ChecklistPath: checklistPath,
				User:          user,
				Observer:      bar,
			})
			bar.Finish()
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			printReport(cmd.OutOrStdout(), rep, cfg.Paths.ReportDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&checklistPath, "checklist", "", "Checklist JSON file (defaults to evaluation.checklist_path)")
	cmd.Flags().StringVar(&user, "user", "cli_user", "User recorded in the audit log")
	cmd.Flags().StringVar(&mode, "mode", "", "Evaluation mode: rag, long_context or auto")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	return cmd
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.config
			svc, err := buildServices(cmd.Context(), cfg, ctx.logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			if port == 0 {
				port = cfg.Server.Port
			}
			srv, err := server.New(server.Config{
				Host:         cfg.Server.Host,
				Port:         port,
				UploadDir:    cfg.Paths.UploadDir,
				QueueSize:    cfg.Server.QueueSize,
				Heartbeat:    time.Duration(cfg.Server.HeartbeatSeconds) * time.Second,
				JobRetention: time.Duration(cfg.Server.JobRetentionHours) * time.Hour,
				Logger:       ctx.logger,
			}, server.Deps{
				Runner:  svc.pipeline,
				Jobs:    jobs.New(ctx.logger),
				Reports: svc.reports,
				Audit:   svc.ledger,
			})
			if err != nil {
				return err
			}
			return srv.ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (defaults to server.port)")
	return cmd
}

func newAuditCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the evaluation audit log",
	}

	var limit int
	recent := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recent evaluations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger(ctx.config, ctx.logger)
			if err != nil {
				return err
			}
			defer ledger.Close()

			entries, err := ledger.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printAuditEntries(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	recent.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records")

	document := &cobra.Command{
		Use:   "document <doc_id>",
		Short: "Show evaluations of one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger(ctx.config, ctx.logger)
			if err != nil {
				return err
			}
			defer ledger.Close()

			entries, err := ledger.ByDocument(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printAuditEntries(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	user := &cobra.Command{
		Use:   "user <user_id>",
		Short: "Show evaluations run by one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger(ctx.config, ctx.logger)
			if err != nil {
				return err
			}
			defer ledger.Close()

			entries, err := ledger.ByUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printAuditEntries(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	cmd.AddCommand(recent, document, user)
	return cmd
}

func newChecklistCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "checklist",
		Short:       "Work with checklist files",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}

	validate := &cobra.Command{
		Use:   "validate <path>",
		Short: "Validate a checklist file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := checklist.Load(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s (version %s, %d items)\n",
				color.GreenString("✓"), list.Name, list.Version, len(list.Items))

			rows := make([][]string, 0, len(list.Items))
			for _, item := range list.Items {
				rows = append(rows, []string{item.ItemID, item.Category, fmt.Sprintf("%.1f", item.Weight), truncate(item.Requirement, 70)})
			}
			fmt.Fprintln(out, renderTable([]string{"Item", "Category", "Weight", "Requirement"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
			return nil
		},
	}

	cmd.AddCommand(validate)
	return cmd
}
