package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ledgerline/catalog-ingest/internal/bronze"
	"github.com/ledgerline/catalog-ingest/internal/crawl"
	"github.com/ledgerline/catalog-ingest/internal/directory"
	"github.com/ledgerline/catalog-ingest/internal/drift"
	"github.com/ledgerline/catalog-ingest/internal/fetcher"
	"github.com/ledgerline/catalog-ingest/internal/model"
	"github.com/ledgerline/catalog-ingest/internal/raw"
	"github.com/ledgerline/catalog-ingest/internal/store"
)

var (
	ingestAsOf          string
	ingestProviderLimit int
	ingestFetchDetails  bool
	ingestIndustry      string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run a full ingestion: discover providers, crawl product endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		asOf := ingestAsOf
		if asOf == "" {
			asOf = time.Now().UTC().Format(model.DateFormat)
		}
		if _, err := time.Parse(model.DateFormat, asOf); err != nil {
			return eris.Wrapf(err, "parse as-of date %q", asOf)
		}

		industry := ingestIndustry
		if industry == "" {
			industry = cfg.Register.FilterIndustry
		}

		crawlCfg := cfg.Crawl
		if cmd.Flags().Changed("provider-limit") {
			crawlCfg.ProviderLimit = ingestProviderLimit
		}
		if cmd.Flags().Changed("fetch-details") {
			crawlCfg.FetchDetails = ingestFetchDetails
		}

		run, err := st.CreateRun(ctx, asOf, industry, crawlCfg.FetchDetails)
		if err != nil {
			return eris.Wrap(err, "create run")
		}
		zap.L().Info("ingestion run started",
			zap.String("run_id", run.ID),
			zap.String("as_of", asOf),
			zap.String("industry", industry))

		files := bronze.NewFileSink(cfg.Bronze.Dir)
		client := newFetcher(st)

		regCfg := cfg.Register
		if industry != "" {
			regCfg.FilterIndustry = industry
		}
		providers, err := directory.New(client, st, files, regCfg).Discover(ctx, run.ID, asOf)
		if err != nil {
			if ferr := st.FinishRun(ctx, run.ID, model.RunStatusFailed); ferr != nil {
				zap.L().Error("finish run", zap.Error(ferr))
			}
			return eris.Wrap(err, "discover providers")
		}

		crawler := crawl.New(client, raw.New(files, st), drift.NewDetector(st), cfg.Products, cfg.Details, crawlCfg)
		results := crawler.Run(ctx, run, providers)

		status := model.RunStatusCompleted
		for _, r := range results {
			if r.Failed() {
				status = model.RunStatusCompletedWithErrors
				break
			}
		}
		if err := st.FinishRun(ctx, run.ID, status); err != nil {
			return eris.Wrap(err, "finish run")
		}

		summary := summarizeCrawl(run.ID, asOf, status, results)
		zap.L().Info("ingestion run finished",
			zap.String("run_id", run.ID),
			zap.String("status", string(status)),
			zap.Int("providers", summary.Providers),
			zap.Int("failed", summary.Failed),
			zap.Int("pages", summary.Pages),
			zap.Int("products", summary.Products))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

// crawlSummary aggregates per-provider results for operator output.
type crawlSummary struct {
	RunID     string          `json:"run_id"`
	AsOf      string          `json:"as_of"`
	Status    model.RunStatus `json:"status"`
	Providers int             `json:"providers"`
	Failed    int             `json:"failed"`
	Capped    int             `json:"capped"`
	Loops     int             `json:"loops"`
	Pages     int             `json:"pages"`
	Products  int             `json:"products"`
	Details   int             `json:"details,omitempty"`
}

func summarizeCrawl(runID, asOf string, status model.RunStatus, results []crawl.ProviderResult) crawlSummary {
	s := crawlSummary{RunID: runID, AsOf: asOf, Status: status, Providers: len(results)}
	for _, r := range results {
		s.Pages += r.Pages
		s.Products += r.Products
		s.Details += r.DetailsOK
		switch r.Outcome {
		case crawl.OutcomeCapped:
			s.Capped++
		case crawl.OutcomeLoopDetected:
			s.Loops++
		case crawl.OutcomeUnavailable, crawl.OutcomeFailed:
			s.Failed++
		}
	}
	return s
}

func newFetcher(st store.Store) *fetcher.Client {
	return fetcher.New(fetcher.Options{
		UserAgent:      cfg.HTTP.UserAgent,
		Timeout:        time.Duration(cfg.HTTP.TimeoutSecs) * time.Second,
		MaxAttempts:    cfg.HTTP.MaxAttempts,
		InitialBackoff: time.Duration(cfg.HTTP.BackoffSecs * float64(time.Second)),
		RatePerHost:    rate.Limit(cfg.HTTP.RatePerHost),
		RateBurst:      cfg.HTTP.RateBurst,
	}, st)
}

func init() {
	ingestCmd.Flags().StringVar(&ingestAsOf, "as-of", "", "partition date YYYY-MM-DD (default today UTC)")
	ingestCmd.Flags().IntVar(&ingestProviderLimit, "provider-limit", 0, "crawl at most N providers (0 = all)")
	ingestCmd.Flags().BoolVar(&ingestFetchDetails, "fetch-details", false, "also fetch per-product detail documents")
	ingestCmd.Flags().StringVar(&ingestIndustry, "industry", "", "industry filter for discovery (default from config)")
	rootCmd.AddCommand(ingestCmd)
}
