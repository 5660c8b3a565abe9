package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ImpactRadar/pkg/alert"
	"ImpactRadar/pkg/analog"
	"ImpactRadar/pkg/config"
	"ImpactRadar/pkg/database"
	"ImpactRadar/pkg/engine"
	"ImpactRadar/pkg/logging"
	"ImpactRadar/pkg/messaging"
	"ImpactRadar/pkg/portfolio"
)

// env 子命令共享的依赖，在 PersistentPreRunE 中建立
type env struct {
	cfg   *config.Config
	store *database.Store
}

func newRootCmd() *cobra.Command {
	e := &env{}
	var configPath string

	root := &cobra.Command{
		Use:          "impactctl",
		Short:        "ImpactRadar operator CLI",
		Long:         "Recompute impact scores, preview portfolio recommendations and digests directly against the database.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = config.GetDefaultConfigPath()
			}
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			logging.Setup(cfg.Log.Level, cfg.App.Env)
			store, err := database.NewPostgres(cfg)
			if err != nil {
				return err
			}
			e.cfg, e.store = cfg, store
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if e.store != nil {
				return e.store.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "configuration file path (defaults to configs/<APP_ENV>/app.yaml)")

	root.AddCommand(newRecalcCmd(e))
	root.AddCommand(newAnalyzeCmd(e))
	root.AddCommand(newDigestCmd(e))
	return root
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newRecalcCmd(e *env) *cobra.Command {
	var userID string
	var all bool
	cmd := &cobra.Command{
		Use:   "recalc",
		Short: "Recompute impact scores for one user or everyone",
		Example: `  impactctl recalc --user 5f0c...
  impactctl recalc --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (userID == "") == !all {
				return errors.New("exactly one of --user or --all is required")
			}
			ctx, cancel := signalContext()
			defer cancel()

			pipeline := engine.NewPipeline(e.store, nil, e.cfg.Scoring)
			started := time.Now()
			var stats engine.ImpactStats
			var err error
			if all {
				stats, err = pipeline.RecomputeAll(ctx)
			} else {
				stats, err = pipeline.RecomputeUserImpacts(ctx, userID)
			}
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render("recalc failed: "+err.Error()))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStats(stats, time.Since(started)))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().BoolVar(&all, "all", false, "recompute every user")
	return cmd
}

func newAnalyzeCmd(e *env) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Show rebalance recommendations and the portfolio summary for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			analyzer := portfolio.NewAnalyzer(e.store, analog.New(e.store, e.cfg.Scoring), nil, e.cfg.Scoring)
			result, err := analyzer.Analyze(ctx, userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderAnalysis(result))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newDigestCmd(e *env) *cobra.Command {
	var userID, day string
	var send bool
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Preview (or send with --send) the daily digest for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			date := time.Now().UTC()
			if day != "" {
				parsed, err := time.Parse("2006-01-02", day)
				if err != nil {
					return fmt.Errorf("invalid --day %q: %w", day, err)
				}
				date = parsed
			}
			if _, err := e.store.GetUser(ctx, userID); err != nil {
				return err
			}

			if !send {
				digest, err := alert.NewSynthesizer(e.store, e.cfg.Scoring).BuildDailyDigest(ctx, userID, date)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderAlert(digest))
				return nil
			}

			pipeline := engine.NewPipeline(e.store, nil, e.cfg.Scoring)
			if e.cfg.Jobs.Transport == "nats" {
				client, err := messaging.NewNATSClient(e.cfg.NATS.URL)
				if err != nil {
					return err
				}
				defer client.Close()
				pipeline.SetPublisher(messaging.NewAlertPublisher(client))
			}
			digest, err := pipeline.DeliverDailyDigest(ctx, userID, date)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderAlert(digest))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&day, "day", "", "UTC day in YYYY-MM-DD format (today if not provided)")
	cmd.Flags().BoolVar(&send, "send", false, "persist the digest and publish it")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
