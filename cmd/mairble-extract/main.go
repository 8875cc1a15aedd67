// Command mairble-extract exports nightly pricing records for every listing
// and annotates them with model analysis.
//
//	mairble-extract extract --out nightly_records.json
//	mairble-extract analyze --in nightly_records.json --out nightly_records_with_ai.json
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mairble/mairble-backend-go/internal/config"
	"github.com/mairble/mairble-backend-go/internal/extract"
	"github.com/mairble/mairble-backend-go/internal/infra/client"
	"github.com/mairble/mairble-backend-go/internal/infra/llm"
	"github.com/mairble/mairble-backend-go/internal/infra/observability"
	"github.com/mairble/mairble-backend-go/internal/infra/resilience"
	"github.com/mairble/mairble-backend-go/internal/prompts"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mairble-extract",
		Short:        "Export and analyze nightly pricing records",
		SilenceUsage: true,
	}
	root.AddCommand(newExtractCmd(), newAnalyzeCmd())
	return root
}

func newExtractCmd() *cobra.Command {
	var (
		out        string
		windowDays int
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Export unbooked nights of every listing with market data",
		Long: `Fetch every listing from PriceLabs, then its nightly prices from
today minus the window to today plus the window. Booked nights are dropped.
Market average price and occupancy come from the neighborhood data.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger := setup()
			defer logger.Sync()

			provider := client.NewPriceLabsClient(
				observability.NewTracedHTTPClient(cfg.HTTPTimeout),
				cfg.PriceLabsBaseURL,
				cfg.PriceLabsAPIKey,
				resilience.NewCircuitBreaker("pricelabs", nil),
				resilienceConfig(cfg),
				logger,
			)
			ex := extract.NewExtractor(provider, logger, extract.Options{WindowDays: windowDays})

			start := time.Now()
			records, err := ex.Extract(cmd.Context(), "")
			if err != nil {
				return err
			}
			if err := writeRecords(out, records); err != nil {
				return err
			}
			logger.Info("exported records",
				zap.String("file", out),
				zap.String("records", humanize.Comma(int64(len(records)))),
				zap.Duration("elapsed", time.Since(start)),
			)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "nightly_records.json", "output file")
	cmd.Flags().IntVar(&windowDays, "window", 90, "days on each side of today")
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	var (
		in, out  string
		model    string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Annotate exported records with model analysis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger := setup()
			defer logger.Sync()

			baseURL := cfg.OpenAIBaseURL
			if cfg.LLMProvider == llm.ProviderAnthropic {
				baseURL = cfg.AnthropicBaseURL
			}
			name := model
			if name == "" {
				name = cfg.AnalysisModel
			}
			llmClient, err := llm.New(llm.Options{
				Provider:   cfg.LLMProvider,
				APIKey:     cfg.LLMAPIKey(),
				BaseURL:    baseURL,
				HTTPClient: observability.NewTracedHTTPClient(60 * time.Second),
				Resilience: resilienceConfig(cfg),
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			f, err := os.Open(in)
			if err != nil {
				return err
			}
			records, err := extract.ReadJSON(f)
			f.Close()
			if err != nil {
				return err
			}

			catalog, err := prompts.Load()
			if err != nil {
				return err
			}
			a := extract.NewAnalyzer(llmClient, catalog, name, prompts.DefaultLocation, interval, logger)
			logger.Info("analyzing records",
				zap.String("records", humanize.Comma(int64(len(records)))),
				zap.String("done", humanize.Time(time.Now().Add(time.Duration(len(records))*interval))),
			)

			annotated, err := a.Analyze(cmd.Context(), records)
			if werr := writeRecords(out, annotated); werr != nil {
				return werr
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "nightly_records.json", "records exported by extract")
	cmd.Flags().StringVarP(&out, "out", "o", "nightly_records_with_ai.json", "output file")
	cmd.Flags().StringVar(&model, "model", "", "model name (default ANALYSIS_MODEL)")
	cmd.Flags().DurationVar(&interval, "interval", extract.DefaultInterval, "minimum delay between model calls")
	return cmd
}

func setup() (*config.Config, *zap.Logger) {
	_ = config.LoadDotEnv(".env")
	cfg := config.Load()
	return cfg, observability.NewLogger(cfg.LogLevel)
}

func resilienceConfig(cfg *config.Config) resilience.Config {
	return resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
}

func writeRecords[T extract.Record | extract.AnalyzedRecord](path string, records []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := extract.WriteJSON(f, records); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
