package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"FusionTrader/internal/di"
	"FusionTrader/internal/repository"
	"FusionTrader/internal/usecase"
	"FusionTrader/pkg/config"
	"FusionTrader/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "fusiontrader",
		Short:         "Signal-fusion trading loop with adaptive weights",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")

	root.AddCommand(
		newRunCmd(&configPath),
		newEvaluateCmd(&configPath),
		newJournalCmd(&configPath),
	)
	return root
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the trading daemon until SIGINT or SIGTERM",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithEnv(*configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			app, err := di.InitializeApp(di.ConfigPath(*configPath), cfg)
			if err != nil {
				return fmt.Errorf("app initialization failed: %w", err)
			}
			return app.Run()
		},
	}
}

func newEvaluateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Run one weight-tuning pass and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithEnv(*configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			ev, err := di.InitializeEvaluator(di.ConfigPath(*configPath), cfg)
			if err != nil {
				return fmt.Errorf("evaluator initialization failed: %w", err)
			}
			defer ev.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			res, err := ev.Run(ctx)
			if err != nil {
				return fmt.Errorf("evaluation failed: %w", err)
			}
			ev.Logger.Info("evaluation finished",
				logger.String("outcome", string(res.Outcome)),
				logger.Int("joined", res.Joined))
			return printJSON(cmd, evaluateReport(res))
		},
	}
}

type evaluationReport struct {
	Outcome      usecase.TuneOutcome `json:"outcome"`
	Joined       int                 `json:"joined"`
	Unmatched    int                 `json:"unmatched"`
	Weights      map[string]float64  `json:"weights"`
	Correlations map[string]float64  `json:"correlations,omitempty"`
}

func evaluateReport(r usecase.TuneResult) evaluationReport {
	return evaluationReport{
		Outcome:      r.Outcome,
		Joined:       r.Joined,
		Unmatched:    r.Unmatched,
		Weights:      r.Weights,
		Correlations: r.Correlations,
	}
}

func newJournalCmd(configPath *string) *cobra.Command {
	var (
		limit  int
		symbol string
	)
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print the newest journal entries as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be at least 1")
			}
			cfg, err := config.LoadWithEnv(*configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			j := repository.NewFileJournal(cfg.EvaluatorSettings.JournalFile, logger.NewNop())
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, e := range repository.Tail(j.ReadAll(context.Background()), symbol, limit) {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries")
	cmd.Flags().StringVar(&symbol, "symbol", "", "only entries for this symbol")
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
