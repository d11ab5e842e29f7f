package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/ledgerline/catalog-ingest/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Table names are
// unqualified; the transform layer, when present, materializes dim_products
// and mart_rate_changes in the same file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	as_of_date    TEXT NOT NULL,
	industry      TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	fetch_details INTEGER NOT NULL DEFAULT 0,
	started_at    DATETIME NOT NULL,
	finished_at   DATETIME
);

CREATE TABLE IF NOT EXISTS providers (
	provider_id   TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	brand_group   TEXT,
	industries    TEXT NOT NULL DEFAULT '[]',
	base_uri      TEXT NOT NULL,
	last_updated  TEXT,
	discovered_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS api_call_log (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id            TEXT NOT NULL,
	provider_id       TEXT NOT NULL,
	endpoint          TEXT NOT NULL,
	url               TEXT NOT NULL,
	requested_version INTEGER,
	http_status       INTEGER,
	responded_version INTEGER,
	fetched_at        DATETIME NOT NULL,
	error             TEXT
);

CREATE TABLE IF NOT EXISTS pages (
	run_id            TEXT NOT NULL,
	provider_id       TEXT NOT NULL,
	brand_name        TEXT,
	endpoint          TEXT NOT NULL,
	url               TEXT NOT NULL,
	page_num          INTEGER NOT NULL,
	as_of_date        TEXT NOT NULL,
	http_status       INTEGER NOT NULL,
	responded_version INTEGER,
	fetched_at        DATETIME NOT NULL,
	etag              TEXT,
	payload           TEXT NOT NULL,
	payload_sha256    TEXT NOT NULL,
	PRIMARY KEY (provider_id, endpoint, page_num, as_of_date)
);

CREATE TABLE IF NOT EXISTS product_details (
	run_id            TEXT NOT NULL,
	provider_id       TEXT NOT NULL,
	brand_name        TEXT,
	product_id        TEXT NOT NULL,
	url               TEXT NOT NULL,
	as_of_date        TEXT NOT NULL,
	http_status       INTEGER NOT NULL,
	responded_version INTEGER,
	fetched_at        DATETIME NOT NULL,
	etag              TEXT,
	payload           TEXT NOT NULL,
	payload_sha256    TEXT NOT NULL,
	PRIMARY KEY (provider_id, product_id, as_of_date)
);

CREATE TABLE IF NOT EXISTS schema_baselines (
	provider_id TEXT NOT NULL,
	endpoint    TEXT NOT NULL,
	signature   TEXT NOT NULL,
	hash        TEXT NOT NULL,
	run_id      TEXT NOT NULL,
	observed_at DATETIME NOT NULL,
	PRIMARY KEY (provider_id, endpoint)
);

CREATE TABLE IF NOT EXISTS schema_drift_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	provider_id TEXT NOT NULL,
	endpoint    TEXT NOT NULL,
	as_of_date  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	field_path  TEXT NOT NULL,
	previous    TEXT,
	observed    TEXT,
	observed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS qa_check_results (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	qa_run_id    TEXT NOT NULL,
	as_of_date   TEXT NOT NULL,
	name         TEXT NOT NULL,
	passed       INTEGER NOT NULL,
	advisory     INTEGER NOT NULL DEFAULT 0,
	observed     REAL,
	threshold    REAL,
	details      TEXT,
	evaluated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_api_call_log_run_id ON api_call_log(run_id);
CREATE INDEX IF NOT EXISTS idx_pages_as_of ON pages(as_of_date);
CREATE INDEX IF NOT EXISTS idx_drift_as_of ON schema_drift_events(as_of_date);
CREATE INDEX IF NOT EXISTS idx_qa_run_id ON qa_check_results(qa_run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, asOf, industry string, fetchDetails bool) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, as_of_date, industry, status, fetch_details, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, asOf, industry, string(model.RunStatusRunning), fetchDetails, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:           id,
		AsOf:         asOf,
		Industry:     industry,
		Status:       model.RunStatusRunning,
		StartedAt:    now,
		FetchDetails: fetchDetails,
	}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var finishedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, as_of_date, industry, status, fetch_details, started_at, finished_at FROM runs WHERE id = ?`,
		runID,
	).Scan(&r.ID, &r.AsOf, &r.Industry, &r.Status, &r.FetchDetails, &r.StartedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "sqlite: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Time
	}
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, as_of_date, industry, status, fetch_details, started_at, finished_at FROM runs WHERE true`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.AsOf != "" {
		query += ` AND as_of_date = ?`
		args = append(args, filter.AsOf)
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var finishedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.AsOf, &r.Industry, &r.Status, &r.FetchDetails, &r.StartedAt, &finishedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if finishedAt.Valid {
			r.FinishedAt = &finishedAt.Time
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs rows")
}

func (s *SQLiteStore) UpsertProviders(ctx context.Context, providers []model.Provider) (int64, error) {
	if len(providers) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert providers")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO providers (provider_id, name, brand_group, industries, base_uri, last_updated, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_id) DO UPDATE SET
		name = excluded.name, brand_group = excluded.brand_group, industries = excluded.industries,
		base_uri = excluded.base_uri, last_updated = excluded.last_updated, discovered_at = excluded.discovered_at`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert providers")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var n int64
	for _, p := range providers {
		industriesJSON, err := json.Marshal(p.Industries)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal industries for %s", p.ID)
		}
		if _, err := stmt.ExecContext(ctx, p.ID, p.Name, p.Group, string(industriesJSON), p.BaseURI, p.LastUpdated, now); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert provider %s", p.ID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert providers")
	}
	return n, nil
}

func (s *SQLiteStore) ListProviders(ctx context.Context) ([]model.Provider, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider_id, name, brand_group, industries, base_uri, last_updated FROM providers ORDER BY provider_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list providers")
	}
	defer rows.Close()

	var providers []model.Provider
	for rows.Next() {
		var p model.Provider
		var industriesJSON string
		if err := rows.Scan(&p.ID, &p.Name, &p.Group, &industriesJSON, &p.BaseURI, &p.LastUpdated); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan provider")
		}
		if err := json.Unmarshal([]byte(industriesJSON), &p.Industries); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal industries")
		}
		providers = append(providers, p)
	}
	return providers, eris.Wrap(rows.Err(), "sqlite: list providers rows")
}

func (s *SQLiteStore) AppendAPICall(ctx context.Context, call model.APICall) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_call_log
		(run_id, provider_id, endpoint, url, requested_version, http_status, responded_version, fetched_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.RunID, call.ProviderID, call.Endpoint, call.URL,
		call.RequestedVersion, call.HTTPStatus, call.RespondedVersion, call.FetchedAt, call.Error,
	)
	return eris.Wrap(err, "sqlite: append api call")
}

func (s *SQLiteStore) ListAPICalls(ctx context.Context, runID string) ([]model.APICall, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, provider_id, endpoint, url, requested_version, http_status, responded_version, fetched_at, error
		FROM api_call_log WHERE run_id = ? ORDER BY fetched_at, id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list api calls")
	}
	defer rows.Close()

	var calls []model.APICall
	for rows.Next() {
		var c model.APICall
		if err := rows.Scan(&c.RunID, &c.ProviderID, &c.Endpoint, &c.URL,
			&c.RequestedVersion, &c.HTTPStatus, &c.RespondedVersion, &c.FetchedAt, &c.Error); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan api call")
		}
		calls = append(calls, c)
	}
	return calls, eris.Wrap(rows.Err(), "sqlite: list api calls rows")
}

func (s *SQLiteStore) UpsertPage(ctx context.Context, page model.Page) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pages
		(run_id, provider_id, brand_name, endpoint, url, page_num, as_of_date, http_status, responded_version, fetched_at, etag, payload, payload_sha256)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_id, endpoint, page_num, as_of_date) DO UPDATE SET
		run_id = excluded.run_id, brand_name = excluded.brand_name, url = excluded.url,
		http_status = excluded.http_status, responded_version = excluded.responded_version,
		fetched_at = excluded.fetched_at, etag = excluded.etag,
		payload = excluded.payload, payload_sha256 = excluded.payload_sha256`,
		page.RunID, page.ProviderID, page.BrandName, page.Endpoint, page.URL,
		page.PageNum, page.AsOf, page.HTTPStatus, page.RespondedVersion,
		page.FetchedAt, page.ETag, string(page.Payload), page.PayloadSHA256,
	)
	return eris.Wrapf(err, "sqlite: upsert page %s/%s/%d", page.ProviderID, page.Endpoint, page.PageNum)
}

func (s *SQLiteStore) UpsertProductDetail(ctx context.Context, detail model.ProductDetail) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO product_details
		(run_id, provider_id, brand_name, product_id, url, as_of_date, http_status, responded_version, fetched_at, etag, payload, payload_sha256)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_id, product_id, as_of_date) DO UPDATE SET
		run_id = excluded.run_id, brand_name = excluded.brand_name, url = excluded.url,
		http_status = excluded.http_status, responded_version = excluded.responded_version,
		fetched_at = excluded.fetched_at, etag = excluded.etag,
		payload = excluded.payload, payload_sha256 = excluded.payload_sha256`,
		detail.RunID, detail.ProviderID, detail.BrandName, detail.ProductID, detail.URL,
		detail.AsOf, detail.HTTPStatus, detail.RespondedVersion,
		detail.FetchedAt, detail.ETag, string(detail.Payload), detail.PayloadSHA256,
	)
	return eris.Wrapf(err, "sqlite: upsert product detail %s/%s", detail.ProviderID, detail.ProductID)
}

func (s *SQLiteStore) GetBaseline(ctx context.Context, providerID, endpoint string) (*model.Baseline, error) {
	var b model.Baseline
	var signatureJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT provider_id, endpoint, signature, hash, run_id, observed_at FROM schema_baselines WHERE provider_id = ? AND endpoint = ?`,
		providerID, endpoint,
	).Scan(&b.ProviderID, &b.Endpoint, &signatureJSON, &b.Hash, &b.RunID, &b.ObservedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get baseline %s/%s", providerID, endpoint)
	}
	if err := json.Unmarshal([]byte(signatureJSON), &b.Signature); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal baseline signature")
	}
	return &b, nil
}

func (s *SQLiteStore) SaveBaseline(ctx context.Context, baseline model.Baseline) error {
	signatureJSON, err := json.Marshal(baseline.Signature)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal baseline signature")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schema_baselines (provider_id, endpoint, signature, hash, run_id, observed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_id, endpoint) DO UPDATE SET
		signature = excluded.signature, hash = excluded.hash,
		run_id = excluded.run_id, observed_at = excluded.observed_at`,
		baseline.ProviderID, baseline.Endpoint, string(signatureJSON), baseline.Hash, baseline.RunID, baseline.ObservedAt,
	)
	return eris.Wrapf(err, "sqlite: save baseline %s/%s", baseline.ProviderID, baseline.Endpoint)
}

func (s *SQLiteStore) InsertDriftEvents(ctx context.Context, events []model.DriftEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert drift events")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO schema_drift_events
		(run_id, provider_id, endpoint, as_of_date, kind, field_path, previous, observed, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert drift events")
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.RunID, e.ProviderID, e.Endpoint, e.AsOf,
			string(e.Kind), e.FieldPath, e.Previous, e.Observed, e.ObservedAt); err != nil {
			return eris.Wrap(err, "sqlite: insert drift event")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit drift events")
}

func (s *SQLiteStore) ListDriftEvents(ctx context.Context, filter DriftFilter) ([]model.DriftEvent, error) {
	query := `SELECT run_id, provider_id, endpoint, as_of_date, kind, field_path, previous, observed, observed_at
		FROM schema_drift_events WHERE true`
	args := []any{}

	if filter.ProviderID != "" {
		query += ` AND provider_id = ?`
		args = append(args, filter.ProviderID)
	}
	if filter.AsOf != "" {
		query += ` AND as_of_date = ?`
		args = append(args, filter.AsOf)
	}
	query += ` ORDER BY observed_at DESC, id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list drift events")
	}
	defer rows.Close()

	var events []model.DriftEvent
	for rows.Next() {
		var e model.DriftEvent
		if err := rows.Scan(&e.RunID, &e.ProviderID, &e.Endpoint, &e.AsOf, &e.Kind, &e.FieldPath, &e.Previous, &e.Observed, &e.ObservedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan drift event")
		}
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list drift events rows")
}

func (s *SQLiteStore) ProvidersWithPages(ctx context.Context, asOf string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT provider_id) FROM pages WHERE as_of_date = ? AND http_status = 200`,
		asOf,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: providers with pages")
}

// hasTable reports whether a table exists; the transform layer owns
// dim_products and mart_rate_changes, so they may legitimately be absent.
func (s *SQLiteStore) hasTable(ctx context.Context, name string) (bool, error) {
	var found string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: check table %s", name)
	}
	return true, nil
}

func (s *SQLiteStore) countWhere(ctx context.Context, table, dateCol, asOf string) (int64, error) {
	ok, err := s.hasTable(ctx, table)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrMissingRelation
	}
	var n int64
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ?`, table, dateCol),
		asOf,
	).Scan(&n)
	return n, eris.Wrapf(err, "sqlite: count %s", table)
}

func (s *SQLiteStore) ProductRowCount(ctx context.Context, asOf string) (int64, error) {
	return s.countWhere(ctx, "dim_products", "as_of_date", asOf)
}

func (s *SQLiteStore) RateChangeRowCount(ctx context.Context, asOf string) (int64, error) {
	return s.countWhere(ctx, "mart_rate_changes", "current_as_of_date", asOf)
}

func (s *SQLiteStore) LatestPageFetchedAt(ctx context.Context, asOf string) (*time.Time, error) {
	var latest sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(fetched_at) FROM pages WHERE as_of_date = ? AND http_status = 200`,
		asOf,
	).Scan(&latest)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest page fetched_at")
	}
	if !latest.Valid {
		return nil, nil
	}
	return &latest.Time, nil
}

func (s *SQLiteStore) DriftEventCount(ctx context.Context, asOf string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM schema_drift_events WHERE as_of_date = ?`,
		asOf,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: drift event count")
}

func (s *SQLiteStore) SaveQAResults(ctx context.Context, results []model.QACheckResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save qa results")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO qa_check_results
		(qa_run_id, as_of_date, name, passed, advisory, observed, threshold, details, evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare save qa results")
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, r.QARunID, r.AsOf, r.Name, r.Passed, r.Advisory,
			r.Observed, r.Threshold, r.Details, r.EvaluatedAt); err != nil {
			return eris.Wrap(err, "sqlite: insert qa result")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit qa results")
}

func (s *SQLiteStore) ListQAResults(ctx context.Context, qaRunID string) ([]model.QACheckResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT qa_run_id, as_of_date, name, passed, advisory, observed, threshold, details, evaluated_at
		FROM qa_check_results WHERE qa_run_id = ? ORDER BY id`,
		qaRunID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list qa results")
	}
	defer rows.Close()

	var results []model.QACheckResult
	for rows.Next() {
		var r model.QACheckResult
		if err := rows.Scan(&r.QARunID, &r.AsOf, &r.Name, &r.Passed, &r.Advisory,
			&r.Observed, &r.Threshold, &r.Details, &r.EvaluatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan qa result")
		}
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: list qa results rows")
}
