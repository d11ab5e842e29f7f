// Package model holds the shared domain types for catalog ingestion.
package model

import "time"

// DateFormat is the layout for as-of partition dates.
const DateFormat = time.DateOnly

// RunStatus represents the terminal (or current) state of an ingestion run.
type RunStatus string

const (
	RunStatusRunning             RunStatus = "running"
	RunStatusCompleted           RunStatus = "completed"
	RunStatusCompletedWithErrors RunStatus = "completed_with_errors"
	RunStatusFailed              RunStatus = "failed"
)

// Run is a single ingestion execution. Runs are never resumed; re-running
// creates a new Run with its own id.
type Run struct {
	ID           string     `json:"id"`
	AsOf         string     `json:"as_of"`
	Industry     string     `json:"industry"`
	Status       RunStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	FetchDetails bool       `json:"fetch_details"`
}

// Provider is one data publisher discovered from the register, with its
// effective product-API base URI already resolved. Providers are created
// once per discovery run and superseded, not mutated, on the next run.
type Provider struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Group       string   `json:"group,omitempty"`
	Industries  []string `json:"industries"`
	BaseURI     string   `json:"base_uri"`
	LastUpdated string   `json:"last_updated,omitempty"`
}

// APICall is one HTTP attempt, recorded append-only. Every attempt is
// logged, including version-rejected and retried attempts.
type APICall struct {
	RunID            string    `json:"run_id"`
	ProviderID       string    `json:"provider_id"`
	Endpoint         string    `json:"endpoint"`
	URL              string    `json:"url"`
	RequestedVersion int       `json:"requested_version"`
	HTTPStatus       int       `json:"http_status"` // 0 when the transport failed
	RespondedVersion int       `json:"responded_version,omitempty"`
	FetchedAt        time.Time `json:"fetched_at"`
	Error            string    `json:"error,omitempty"`
}

// Page is one successfully fetched page of a paginated endpoint. Its
// logical key is (provider id, endpoint, page number, as-of date);
// storage is idempotent on that key.
type Page struct {
	RunID            string    `json:"run_id"`
	ProviderID       string    `json:"provider_id"`
	BrandName        string    `json:"brand_name,omitempty"`
	Endpoint         string    `json:"endpoint"`
	URL              string    `json:"url"`
	PageNum          int       `json:"page_num"`
	AsOf             string    `json:"as_of"`
	HTTPStatus       int       `json:"http_status"`
	RespondedVersion int       `json:"responded_version,omitempty"`
	FetchedAt        time.Time `json:"fetched_at"`
	ETag             string    `json:"etag,omitempty"`
	Payload          []byte    `json:"payload,omitempty"`
	PayloadSHA256    string    `json:"payload_sha256"`
}

// ProductDetail is one fetched product-detail document, keyed by
// (provider id, product id, as-of date).
type ProductDetail struct {
	RunID            string    `json:"run_id"`
	ProviderID       string    `json:"provider_id"`
	BrandName        string    `json:"brand_name,omitempty"`
	ProductID        string    `json:"product_id"`
	URL              string    `json:"url"`
	AsOf             string    `json:"as_of"`
	HTTPStatus       int       `json:"http_status"`
	RespondedVersion int       `json:"responded_version,omitempty"`
	FetchedAt        time.Time `json:"fetched_at"`
	ETag             string    `json:"etag,omitempty"`
	Payload          []byte    `json:"payload,omitempty"`
	PayloadSHA256    string    `json:"payload_sha256"`
}

// DriftKind classifies a structural change in a payload signature.
type DriftKind string

const (
	DriftFieldAdded   DriftKind = "field_added"
	DriftFieldRemoved DriftKind = "field_removed"
	DriftTypeChanged  DriftKind = "type_changed"
)

// DriftEvent records one changed field path between the stored baseline
// signature and a newly observed one. Events exist only when a prior
// baseline existed; the first-ever page establishes the baseline silently.
type DriftEvent struct {
	RunID      string    `json:"run_id"`
	ProviderID string    `json:"provider_id"`
	Endpoint   string    `json:"endpoint"`
	AsOf       string    `json:"as_of"`
	Kind       DriftKind `json:"kind"`
	FieldPath  string    `json:"field_path"`
	Previous   string    `json:"previous,omitempty"`
	Observed   string    `json:"observed,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// Baseline is the rolling structural signature for a (provider, endpoint)
// pair: observed field paths mapped to their inferred primitive type.
type Baseline struct {
	ProviderID string            `json:"provider_id"`
	Endpoint   string            `json:"endpoint"`
	Signature  map[string]string `json:"signature"`
	Hash       string            `json:"hash"`
	RunID      string            `json:"run_id"`
	ObservedAt time.Time         `json:"observed_at"`
}

// QACheckResult is the outcome of one named QA gate check. The set of
// results for an evaluation always matches the configured check list.
type QACheckResult struct {
	QARunID     string    `json:"qa_run_id"`
	AsOf        string    `json:"as_of"`
	Name        string    `json:"name"`
	Passed      bool      `json:"passed"`
	Advisory    bool      `json:"advisory"`
	Observed    *float64  `json:"observed,omitempty"`
	Threshold   *float64  `json:"threshold,omitempty"`
	Details     string    `json:"details"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}
