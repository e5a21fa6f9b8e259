package main

import (
	"fmt"
	"net/http"

	"github.com/pevans/waybackfed/config"
	"github.com/pevans/waybackfed/pipeline"
	"github.com/pevans/waybackfed/status"
	"github.com/pevans/waybackfed/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newStageCmd builds a command that runs a fixed set of stages.
func newStageCmd(use, short string, stageNames []string, a *app) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [site...]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			stages, err := pipeline.ParseStages(stageNames)
			if err != nil {
				return err
			}
			return runStages(cmd, a, args, stages)
		},
	}
}

func newRunCmd(a *app) *cobra.Command {
	var stageNames []string

	cmd := &cobra.Command{
		Use:   "run [site...]",
		Short: "Run the whole pipeline for each site",
		RunE: func(cmd *cobra.Command, args []string) error {
			stages, err := pipeline.ParseStages(stageNames)
			if err != nil {
				return err
			}
			return runStages(cmd, a, args, stages)
		},
	}
	cmd.Flags().StringSliceVar(&stageNames, "stages", nil, "stages to run (discover,extract,fetch)")

	return cmd
}

func runStages(cmd *cobra.Command, a *app, args []string, stages []pipeline.Stage) error {
	sites, err := a.sites(args)
	if err != nil {
		return err
	}

	return a.pipeline(cmd.Context()).Run(cmd.Context(), sites, stages)
}

func newStatusCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status [site...]",
		Short: "Show per-status row counts for each site",
		RunE: func(cmd *cobra.Command, args []string) error {
			sites, err := a.sites(args)
			if err != nil {
				return err
			}

			var statuses []*status.SiteStatus
			for _, site := range sites {
				st, err := status.Collect(a.cfg, site)
				if err != nil {
					return err
				}
				statuses = append(statuses, st)
			}

			switch format {
			case "json":
				return printStatusJSON(cmd.OutOrStdout(), statuses)
			case "text":
				printStatusTable(cmd.OutOrStdout(), statuses)
				return nil
			default:
				return fmt.Errorf("unknown format %q (use text or json)", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")

	return cmd
}

func newResetCmd(a *app) *cobra.Command {
	var tableName, from string

	cmd := &cobra.Command{
		Use:   "reset <site>",
		Short: "Move failed or empty rows back to pending so they are retried",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			site := args[0]
			if _, err := a.cfg.Site(site); err != nil {
				return err
			}

			fromStatus, err := table.ParseStatus(from)
			if err != nil {
				return err
			}
			if fromStatus != table.StatusFailed && fromStatus != table.StatusNone {
				return fmt.Errorf("can only reset failed or none rows, not %s", fromStatus)
			}

			n, err := resetTable(a.cfg, site, tableName, fromStatus)
			if err != nil {
				return err
			}

			a.logger.Info("Reset rows",
				zap.String("site", site),
				zap.String("table", tableName),
				zap.String("status", string(fromStatus)),
				zap.Int("rows", n),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d %s rows in %s to pending\n", n, fromStatus, tableName)
			return nil
		},
	}
	cmd.Flags().StringVar(&tableName, "table", "links", "table to reset: links or snapshots")
	cmd.Flags().StringVar(&from, "from", "failed", "status to reset: failed or none")

	return cmd
}

// resetTable rewrites one table with every row in status from set back to
// pending.
func resetTable(cfg *config.FileConfig, site, tableName string, from table.Status) (int, error) {
	switch tableName {
	case "links":
		path := cfg.SitePath(site, config.CleanedLinksFile)
		rows, err := table.LoadLinks(path)
		if err != nil {
			return 0, err
		}
		n := table.ResetLinks(rows, from)
		if n == 0 {
			return 0, nil
		}
		return n, table.SaveLinks(path, rows)

	case "snapshots":
		path := cfg.SitePath(site, config.SnapshotsFile)
		rows, err := table.LoadSnapshots(path)
		if err != nil {
			return 0, err
		}
		n := table.ResetSnapshots(rows, from)
		if n == 0 {
			return 0, nil
		}
		return n, table.SaveSnapshots(path, rows)

	default:
		return 0, fmt.Errorf("unknown table %q (use links or snapshots)", tableName)
	}
}

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only status API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var runs status.RunLister
			if store, err := a.openLedger(); err != nil {
				a.logger.Warn("Run ledger unavailable", zap.Error(err))
			} else {
				runs = store
			}

			router := status.NewAPIServer(a.cfg, runs).SetupRouter()
			server := &http.Server{Addr: addr, Handler: router}

			go func() {
				<-cmd.Context().Done()
				server.Close()
			}()

			a.logger.Info("Starting status API server", zap.String("addr", "http://"+addr+"/api/v1/sites"))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", getEnv("WAYBACKFED_ADDR", "localhost:8080"), "listen address")

	return cmd
}
