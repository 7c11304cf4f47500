package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/daaty/dashboard-mobilidade-urbana-main/bootstrap"
	"github.com/daaty/dashboard-mobilidade-urbana-main/config"
	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/spf13/cobra"
)

// A CLI run gives up on a missing store or Redis instead of waiting forever.
const (
	dbAttempts    = 3
	redisAttempts = 3
)

type cli struct {
	app            *bootstrap.App
	skipMigrations bool
}

func rootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "syncctl",
		Short:         "Dashboard sync and import tool",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// cobra checks required flags after this hook; fail before connecting.
			if err := cmd.ValidateRequiredFlags(); err != nil {
				return err
			}
			if err := cmd.ValidateFlagGroups(); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := config.NewLogger(cfg.LogLevel)
			logger.SetOutput(cmd.ErrOrStderr())
			c.app, err = bootstrap.Build(cmd.Context(), cfg, logger, bootstrap.Options{
				SkipMigrations: c.skipMigrations,
				DBAttempts:     dbAttempts,
				RedisAttempts:  redisAttempts,
			})
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.Close()
		},
	}
	root.PersistentFlags().BoolVar(&c.skipMigrations, "skip-migrations", false, "do not run AutoMigrate before the command")

	root.AddCommand(c.syncCommand(), c.recalcCommand(), c.dedupeCommand(), c.importCommand(), c.triggerCommand(), c.statusCommand())
	return root
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) syncCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a full sync: sheets, metrics, duplicates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result := c.app.Sync.SyncAll(cmd.Context(), force, models.SyncTriggeredCLI)
			if err := printJSON(cmd, result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("sync failed: %s", result.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "sync the sheets even when the data is fresh")
	return cmd
}

func (c *cli) recalcCommand() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "recalc",
		Short: "Recompute daily metrics from a start date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := c.app.Sync.DefaultMetricsStart()
			if from != "" {
				parsed, ok := utils.ParseDate(from)
				if !ok {
					return fmt.Errorf("--from must be YYYY-MM-DD or DD/MM/YYYY, got %q", from)
				}
				start = parsed
			}
			result, err := c.app.Sync.RecomputeMetrics(cmd.Context(), start)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day to recompute (default: lookback window)")
	return cmd
}

func (c *cli) dedupeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dedupe",
		Short: "Merge duplicate rides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := c.app.Sync.ResolveDuplicates(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func (c *cli) importCommand() *cobra.Command {
	var importType string
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import rides, drivers or targets from an xlsx or csv file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, ok := models.ParseImportType(importType)
			if !ok {
				return fmt.Errorf("%w: %q", utils.ErrInvalidImportType, importType)
			}
			result, err := c.app.Imports.Import(cmd.Context(), args[0], filepath.Base(args[0]), t, nil)
			if result != nil {
				if perr := printJSON(cmd, result); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&importType, "type", "t", "", "rides, drivers or targets")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func (c *cli) triggerCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Queue a sync on Pub/Sub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.app.Publisher == nil {
				return errors.New("pubsub is not configured (PUBSUB_PROJECT_ID)")
			}
			id, err := c.app.Publisher.PublishSyncRequest(cmd.Context(), force)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{"queued": true, "message_id": id, "at": time.Now().UTC()})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "sync the sheets even when the data is fresh")
	return cmd
}

func (c *cli) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last sync run and record counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := c.app.Sync.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, status)
		},
	}
}
