package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"Confluence/internal/di"
	"Confluence/internal/usecase"
	"Confluence/pkg/config"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	scoreSymbol  string
	scoreNoCache bool
	scorePublish bool
	scoreTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "confluence",
	Short: "Multi-indicator confluence scoring service",
	Long: `Confluence scores symbols across technical, volume, orderflow, orderbook,
sentiment and price-structure components and publishes the breakdowns to
Redis for dashboards.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the publish cycle, refresh queue and HTTP API",
	RunE:  runServe,
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score one symbol and print its breakdown",
	Long: `Score one symbol and print the breakdown as JSON.

Example usage:
  confluence score --symbol BTCUSDT
  confluence score --symbol ETHUSDT --no-cache --publish`,
	RunE: runScore,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
	rootCmd.AddCommand(serveCmd, scoreCmd)

	scoreCmd.Flags().StringVar(&scoreSymbol, "symbol", "", "symbol to score, e.g. BTCUSDT")
	scoreCmd.Flags().BoolVar(&scoreNoCache, "no-cache", false, "compute every indicator directly")
	scoreCmd.Flags().BoolVar(&scorePublish, "publish", false, "also write the breakdown to Redis")
	scoreCmd.Flags().DurationVar(&scoreTimeout, "timeout", 30*time.Second, "overall deadline")
	_ = scoreCmd.MarkFlagRequired("symbol")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.Run(ctx)
}

func runScore(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	scoring, err := di.InitializeAnalysis(cfg)
	if err != nil {
		return fmt.Errorf("scoring initialization failed: %w", err)
	}
	defer scoring.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), scoreTimeout)
	defer cancel()

	symbol := strings.ToUpper(strings.TrimSpace(scoreSymbol))
	res, err := scoring.Analysis.Run(ctx, usecase.AnalyzeParams{Symbol: symbol, UseCache: !scoreNoCache})
	if err != nil {
		return fmt.Errorf("analyze %s: %w", symbol, err)
	}

	b, err := scoring.Publisher.BuildBreakdown(symbol, res)
	if err != nil {
		return fmt.Errorf("build breakdown: %w", err)
	}
	if scorePublish {
		if _, ok := scoring.Publisher.PublishBreakdown(ctx, symbol, res); !ok {
			fmt.Fprintf(os.Stderr, "warning: publish %s failed\n", symbol)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}
