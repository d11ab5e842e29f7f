// Package store persists runs, raw payloads, the API call audit trail,
// schema baselines, drift events, and QA results. Two backends exist:
// Postgres for production and SQLite for local use.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ledgerline/catalog-ingest/internal/model"
)

// ErrMissingRelation reports that a transform-layer table the QA gate
// inspects does not exist in the target database.
var ErrMissingRelation = eris.New("store: relation does not exist")

// ErrRunNotFound reports that no run exists with the requested id.
var ErrRunNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	AsOf   string          `json:"as_of,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// DriftFilter specifies criteria for listing drift events.
type DriftFilter struct {
	ProviderID string `json:"provider_id,omitempty"`
	AsOf       string `json:"as_of,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// Store defines the persistence interface for the ingestion pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, asOf, industry string, fetchDetails bool) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Providers
	UpsertProviders(ctx context.Context, providers []model.Provider) (int64, error)
	ListProviders(ctx context.Context) ([]model.Provider, error)

	// API call audit trail (append-only)
	AppendAPICall(ctx context.Context, call model.APICall) error
	ListAPICalls(ctx context.Context, runID string) ([]model.APICall, error)

	// Raw payloads, idempotent on their logical key
	UpsertPage(ctx context.Context, page model.Page) error
	UpsertProductDetail(ctx context.Context, detail model.ProductDetail) error

	// Schema drift
	GetBaseline(ctx context.Context, providerID, endpoint string) (*model.Baseline, error)
	SaveBaseline(ctx context.Context, baseline model.Baseline) error
	InsertDriftEvents(ctx context.Context, events []model.DriftEvent) error
	ListDriftEvents(ctx context.Context, filter DriftFilter) ([]model.DriftEvent, error)

	// QA gate inputs and results
	ProvidersWithPages(ctx context.Context, asOf string) (int64, error)
	ProductRowCount(ctx context.Context, asOf string) (int64, error)
	RateChangeRowCount(ctx context.Context, asOf string) (int64, error)
	LatestPageFetchedAt(ctx context.Context, asOf string) (*time.Time, error)
	DriftEventCount(ctx context.Context, asOf string) (int64, error)
	SaveQAResults(ctx context.Context, results []model.QACheckResult) error
	ListQAResults(ctx context.Context, qaRunID string) ([]model.QACheckResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
