package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/ledgerline/catalog-ingest/internal/db"
	"github.com/ledgerline/catalog-ingest/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hot path of the crawl: the audit trail and page upserts.
var preparedStatements = map[string]string{
	"insert_api_call": `INSERT INTO bronze.api_call_log
		(run_id, provider_id, endpoint, url, requested_version, http_status, responded_version, fetched_at, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"upsert_page": `INSERT INTO bronze.pages
		(run_id, provider_id, brand_name, endpoint, url, page_num, as_of_date, http_status, responded_version, fetched_at, etag, payload, payload_sha256)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (provider_id, endpoint, page_num, as_of_date) DO UPDATE SET
		run_id = EXCLUDED.run_id, brand_name = EXCLUDED.brand_name, url = EXCLUDED.url,
		http_status = EXCLUDED.http_status, responded_version = EXCLUDED.responded_version,
		fetched_at = EXCLUDED.fetched_at, etag = EXCLUDED.etag,
		payload = EXCLUDED.payload, payload_sha256 = EXCLUDED.payload_sha256`,
	"upsert_detail": `INSERT INTO bronze.product_details
		(run_id, provider_id, brand_name, product_id, url, as_of_date, http_status, responded_version, fetched_at, etag, payload, payload_sha256)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (provider_id, product_id, as_of_date) DO UPDATE SET
		run_id = EXCLUDED.run_id, brand_name = EXCLUDED.brand_name, url = EXCLUDED.url,
		http_status = EXCLUDED.http_status, responded_version = EXCLUDED.responded_version,
		fetched_at = EXCLUDED.fetched_at, etag = EXCLUDED.etag,
		payload = EXCLUDED.payload, payload_sha256 = EXCLUDED.payload_sha256`,
	"get_baseline": `SELECT provider_id, endpoint, signature, hash, run_id, observed_at
		FROM meta.schema_baselines WHERE provider_id = $1 AND endpoint = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE SCHEMA IF NOT EXISTS bronze;
CREATE SCHEMA IF NOT EXISTS meta;

CREATE TABLE IF NOT EXISTS meta.runs (
	id            TEXT PRIMARY KEY,
	as_of_date    DATE NOT NULL,
	industry      TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	fetch_details BOOLEAN NOT NULL DEFAULT false,
	started_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS bronze.providers (
	provider_id   TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	brand_group   TEXT,
	industries    JSONB NOT NULL DEFAULT '[]',
	base_uri      TEXT NOT NULL,
	last_updated  TEXT,
	discovered_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bronze.api_call_log (
	id                BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	run_id            TEXT NOT NULL,
	provider_id       TEXT NOT NULL,
	endpoint          TEXT NOT NULL,
	url               TEXT NOT NULL,
	requested_version INTEGER,
	http_status       INTEGER,
	responded_version INTEGER,
	fetched_at        TIMESTAMPTZ NOT NULL,
	error             TEXT
);

CREATE TABLE IF NOT EXISTS bronze.pages (
	run_id            TEXT NOT NULL,
	provider_id       TEXT NOT NULL,
	brand_name        TEXT,
	endpoint          TEXT NOT NULL,
	url               TEXT NOT NULL,
	page_num          INTEGER NOT NULL,
	as_of_date        DATE NOT NULL,
	http_status       INTEGER NOT NULL,
	responded_version INTEGER,
	fetched_at        TIMESTAMPTZ NOT NULL,
	etag              TEXT,
	payload           JSONB NOT NULL,
	payload_sha256    TEXT NOT NULL,
	PRIMARY KEY (provider_id, endpoint, page_num, as_of_date)
);

CREATE TABLE IF NOT EXISTS bronze.product_details (
	run_id            TEXT NOT NULL,
	provider_id       TEXT NOT NULL,
	brand_name        TEXT,
	product_id        TEXT NOT NULL,
	url               TEXT NOT NULL,
	as_of_date        DATE NOT NULL,
	http_status       INTEGER NOT NULL,
	responded_version INTEGER,
	fetched_at        TIMESTAMPTZ NOT NULL,
	etag              TEXT,
	payload           JSONB NOT NULL,
	payload_sha256    TEXT NOT NULL,
	PRIMARY KEY (provider_id, product_id, as_of_date)
);

CREATE TABLE IF NOT EXISTS meta.schema_baselines (
	provider_id TEXT NOT NULL,
	endpoint    TEXT NOT NULL,
	signature   JSONB NOT NULL,
	hash        TEXT NOT NULL,
	run_id      TEXT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (provider_id, endpoint)
);

CREATE TABLE IF NOT EXISTS meta.schema_drift_events (
	id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	run_id      TEXT NOT NULL,
	provider_id TEXT NOT NULL,
	endpoint    TEXT NOT NULL,
	as_of_date  DATE NOT NULL,
	kind        TEXT NOT NULL,
	field_path  TEXT NOT NULL,
	previous    TEXT,
	observed    TEXT,
	observed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS meta.qa_check_results (
	id           BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	qa_run_id    TEXT NOT NULL,
	as_of_date   DATE NOT NULL,
	name         TEXT NOT NULL,
	passed       BOOLEAN NOT NULL,
	advisory     BOOLEAN NOT NULL DEFAULT false,
	observed     DOUBLE PRECISION,
	threshold    DOUBLE PRECISION,
	details      TEXT,
	evaluated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON meta.runs(status);
CREATE INDEX IF NOT EXISTS idx_api_call_log_run_id ON bronze.api_call_log(run_id);
CREATE INDEX IF NOT EXISTS idx_pages_as_of ON bronze.pages(as_of_date);
CREATE INDEX IF NOT EXISTS idx_pages_run_id ON bronze.pages(run_id);
CREATE INDEX IF NOT EXISTS idx_details_as_of ON bronze.product_details(as_of_date);
CREATE INDEX IF NOT EXISTS idx_drift_as_of ON meta.schema_drift_events(as_of_date);
CREATE INDEX IF NOT EXISTS idx_drift_provider ON meta.schema_drift_events(provider_id, endpoint);
CREATE INDEX IF NOT EXISTS idx_qa_run_id ON meta.qa_check_results(qa_run_id);
`

// Relation candidates for the transform layer; the transform job owns those
// tables, so the store resolves them at query time instead of migrating them.
var (
	productRelations    = []string{"silver.dim_products", "public_silver.dim_products"}
	rateChangeRelations = []string{"gold.mart_rate_changes", "public_gold.mart_rate_changes"}
)

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, asOf, industry string, fetchDetails bool) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO meta.runs (id, as_of_date, industry, status, fetch_details, started_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, asOf, industry, string(model.RunStatusRunning), fetchDetails, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE meta.runs SET status = $1, finished_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var asOf time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT id, as_of_date, industry, status, fetch_details, started_at, finished_at FROM meta.runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &asOf, &r.Industry, &r.Status, &r.FetchDetails, &r.StartedAt, &r.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	r.AsOf = asOf.Format(model.DateFormat)
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, as_of_date, industry, status, fetch_details, started_at, finished_at FROM meta.runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.AsOf != "" {
		query += fmt.Sprintf(` AND as_of_date = $%d`, argIdx)
		args = append(args, filter.AsOf)
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var asOf time.Time
		if err := rows.Scan(&r.ID, &asOf, &r.Industry, &r.Status, &r.FetchDetails, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.AsOf = asOf.Format(model.DateFormat)
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs rows")
}

func (s *PostgresStore) UpsertProviders(ctx context.Context, providers []model.Provider) (int64, error) {
	if len(providers) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(providers))
	for _, p := range providers {
		industriesJSON, err := json.Marshal(p.Industries)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal industries for %s", p.ID)
		}
		rows = append(rows, []any{p.ID, p.Name, p.Group, industriesJSON, p.BaseURI, p.LastUpdated, now})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "bronze.providers",
		Columns:      []string{"provider_id", "name", "brand_group", "industries", "base_uri", "last_updated", "discovered_at"},
		ConflictKeys: []string{"provider_id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert providers")
	}
	return n, nil
}

func (s *PostgresStore) ListProviders(ctx context.Context) ([]model.Provider, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT provider_id, name, brand_group, industries, base_uri, last_updated FROM bronze.providers ORDER BY provider_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list providers")
	}
	defer rows.Close()

	var providers []model.Provider
	for rows.Next() {
		var p model.Provider
		var industriesJSON []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.Group, &industriesJSON, &p.BaseURI, &p.LastUpdated); err != nil {
			return nil, eris.Wrap(err, "postgres: scan provider")
		}
		if err := json.Unmarshal(industriesJSON, &p.Industries); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal industries")
		}
		providers = append(providers, p)
	}
	return providers, eris.Wrap(rows.Err(), "postgres: list providers rows")
}

func (s *PostgresStore) AppendAPICall(ctx context.Context, call model.APICall) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bronze.api_call_log
		(run_id, provider_id, endpoint, url, requested_version, http_status, responded_version, fetched_at, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		call.RunID, call.ProviderID, call.Endpoint, call.URL,
		call.RequestedVersion, call.HTTPStatus, call.RespondedVersion, call.FetchedAt, call.Error,
	)
	return eris.Wrap(err, "postgres: append api call")
}

func (s *PostgresStore) ListAPICalls(ctx context.Context, runID string) ([]model.APICall, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, provider_id, endpoint, url, requested_version, http_status, responded_version, fetched_at, error
		FROM bronze.api_call_log WHERE run_id = $1 ORDER BY fetched_at, id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list api calls")
	}
	defer rows.Close()

	var calls []model.APICall
	for rows.Next() {
		var c model.APICall
		if err := rows.Scan(&c.RunID, &c.ProviderID, &c.Endpoint, &c.URL,
			&c.RequestedVersion, &c.HTTPStatus, &c.RespondedVersion, &c.FetchedAt, &c.Error); err != nil {
			return nil, eris.Wrap(err, "postgres: scan api call")
		}
		calls = append(calls, c)
	}
	return calls, eris.Wrap(rows.Err(), "postgres: list api calls rows")
}

func (s *PostgresStore) UpsertPage(ctx context.Context, page model.Page) error {
	_, err := s.pool.Exec(ctx, preparedStatements["upsert_page"],
		page.RunID, page.ProviderID, page.BrandName, page.Endpoint, page.URL,
		page.PageNum, page.AsOf, page.HTTPStatus, page.RespondedVersion,
		page.FetchedAt, page.ETag, page.Payload, page.PayloadSHA256,
	)
	return eris.Wrapf(err, "postgres: upsert page %s/%s/%d", page.ProviderID, page.Endpoint, page.PageNum)
}

func (s *PostgresStore) UpsertProductDetail(ctx context.Context, detail model.ProductDetail) error {
	_, err := s.pool.Exec(ctx, preparedStatements["upsert_detail"],
		detail.RunID, detail.ProviderID, detail.BrandName, detail.ProductID, detail.URL,
		detail.AsOf, detail.HTTPStatus, detail.RespondedVersion,
		detail.FetchedAt, detail.ETag, detail.Payload, detail.PayloadSHA256,
	)
	return eris.Wrapf(err, "postgres: upsert product detail %s/%s", detail.ProviderID, detail.ProductID)
}

func (s *PostgresStore) GetBaseline(ctx context.Context, providerID, endpoint string) (*model.Baseline, error) {
	var b model.Baseline
	var signatureJSON []byte
	err := s.pool.QueryRow(ctx, preparedStatements["get_baseline"], providerID, endpoint).
		Scan(&b.ProviderID, &b.Endpoint, &signatureJSON, &b.Hash, &b.RunID, &b.ObservedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get baseline %s/%s", providerID, endpoint)
	}
	if err := json.Unmarshal(signatureJSON, &b.Signature); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal baseline signature")
	}
	return &b, nil
}

func (s *PostgresStore) SaveBaseline(ctx context.Context, baseline model.Baseline) error {
	signatureJSON, err := json.Marshal(baseline.Signature)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal baseline signature")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO meta.schema_baselines (provider_id, endpoint, signature, hash, run_id, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider_id, endpoint) DO UPDATE SET
		signature = EXCLUDED.signature, hash = EXCLUDED.hash,
		run_id = EXCLUDED.run_id, observed_at = EXCLUDED.observed_at`,
		baseline.ProviderID, baseline.Endpoint, signatureJSON, baseline.Hash, baseline.RunID, baseline.ObservedAt,
	)
	return eris.Wrapf(err, "postgres: save baseline %s/%s", baseline.ProviderID, baseline.Endpoint)
}

func (s *PostgresStore) InsertDriftEvents(ctx context.Context, events []model.DriftEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		rows = append(rows, []any{e.RunID, e.ProviderID, e.Endpoint, e.AsOf, string(e.Kind), e.FieldPath, e.Previous, e.Observed, e.ObservedAt})
	}
	_, err := db.CopyInto(ctx, s.pool, "meta", "schema_drift_events",
		[]string{"run_id", "provider_id", "endpoint", "as_of_date", "kind", "field_path", "previous", "observed", "observed_at"},
		rows,
	)
	return eris.Wrap(err, "postgres: insert drift events")
}

func (s *PostgresStore) ListDriftEvents(ctx context.Context, filter DriftFilter) ([]model.DriftEvent, error) {
	query := `SELECT run_id, provider_id, endpoint, as_of_date, kind, field_path, previous, observed, observed_at
		FROM meta.schema_drift_events WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ProviderID != "" {
		query += fmt.Sprintf(` AND provider_id = $%d`, argIdx)
		args = append(args, filter.ProviderID)
		argIdx++
	}
	if filter.AsOf != "" {
		query += fmt.Sprintf(` AND as_of_date = $%d`, argIdx)
		args = append(args, filter.AsOf)
		argIdx++
	}
	query += ` ORDER BY observed_at DESC, id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list drift events")
	}
	defer rows.Close()

	var events []model.DriftEvent
	for rows.Next() {
		var e model.DriftEvent
		var asOf time.Time
		if err := rows.Scan(&e.RunID, &e.ProviderID, &e.Endpoint, &asOf, &e.Kind, &e.FieldPath, &e.Previous, &e.Observed, &e.ObservedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan drift event")
		}
		e.AsOf = asOf.Format(model.DateFormat)
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list drift events rows")
}

func (s *PostgresStore) ProvidersWithPages(ctx context.Context, asOf string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT provider_id) FROM bronze.pages WHERE as_of_date = $1 AND http_status = 200`,
		asOf,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: providers with pages")
}

// resolveRelation returns the first candidate relation name that exists in
// the target database, or ErrMissingRelation if none does.
func (s *PostgresStore) resolveRelation(ctx context.Context, candidates []string) (string, error) {
	for _, rel := range candidates {
		var found *string
		if err := s.pool.QueryRow(ctx, `SELECT to_regclass($1)::text`, rel).Scan(&found); err != nil {
			return "", eris.Wrapf(err, "postgres: resolve relation %s", rel)
		}
		if found != nil {
			return rel, nil
		}
	}
	return "", ErrMissingRelation
}

func (s *PostgresStore) ProductRowCount(ctx context.Context, asOf string) (int64, error) {
	rel, err := s.resolveRelation(ctx, productRelations)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE as_of_date = $1`, rel),
		asOf,
	).Scan(&n)
	return n, eris.Wrapf(err, "postgres: count %s", rel)
}

func (s *PostgresStore) RateChangeRowCount(ctx context.Context, asOf string) (int64, error) {
	rel, err := s.resolveRelation(ctx, rateChangeRelations)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE current_as_of_date = $1`, rel),
		asOf,
	).Scan(&n)
	return n, eris.Wrapf(err, "postgres: count %s", rel)
}

func (s *PostgresStore) LatestPageFetchedAt(ctx context.Context, asOf string) (*time.Time, error) {
	var latest *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(fetched_at) FROM bronze.pages WHERE as_of_date = $1 AND http_status = 200`,
		asOf,
	).Scan(&latest)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest page fetched_at")
	}
	return latest, nil
}

func (s *PostgresStore) DriftEventCount(ctx context.Context, asOf string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM meta.schema_drift_events WHERE as_of_date = $1`,
		asOf,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: drift event count")
}

func (s *PostgresStore) SaveQAResults(ctx context.Context, results []model.QACheckResult) error {
	if len(results) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(results))
	for _, r := range results {
		rows = append(rows, []any{r.QARunID, r.AsOf, r.Name, r.Passed, r.Advisory, r.Observed, r.Threshold, r.Details, r.EvaluatedAt})
	}
	_, err := db.CopyInto(ctx, s.pool, "meta", "qa_check_results",
		[]string{"qa_run_id", "as_of_date", "name", "passed", "advisory", "observed", "threshold", "details", "evaluated_at"},
		rows,
	)
	return eris.Wrap(err, "postgres: save qa results")
}

func (s *PostgresStore) ListQAResults(ctx context.Context, qaRunID string) ([]model.QACheckResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT qa_run_id, as_of_date, name, passed, advisory, observed, threshold, details, evaluated_at
		FROM meta.qa_check_results WHERE qa_run_id = $1 ORDER BY id`,
		qaRunID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list qa results")
	}
	defer rows.Close()

	var results []model.QACheckResult
	for rows.Next() {
		var r model.QACheckResult
		var asOf time.Time
		if err := rows.Scan(&r.QARunID, &asOf, &r.Name, &r.Passed, &r.Advisory, &r.Observed, &r.Threshold, &r.Details, &r.EvaluatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan qa result")
		}
		r.AsOf = asOf.Format(model.DateFormat)
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "postgres: list qa results rows")
}
