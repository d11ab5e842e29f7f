package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/catalog-ingest/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO meta.runs`).
		WithArgs(pgxmock.AnyArg(), "2026-08-29", "banking", "running", false, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), "2026-08-29", "banking", false)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.Equal(t, "2026-08-29", run.AsOf)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE meta.runs SET status`).
		WithArgs("completed", pgxmock.AnyArg(), "missing-run").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishRun(context.Background(), "missing-run", model.RunStatusCompleted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, as_of_date, industry, status, fetch_details, started_at, finished_at FROM meta.runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendAPICall(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO bronze.api_call_log`).
		WithArgs("run-1", "provider-1", "products", "https://api.example.com/banking/products",
			4, 200, 4, pgxmock.AnyArg(), "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.AppendAPICall(context.Background(), model.APICall{
		RunID:            "run-1",
		ProviderID:       "provider-1",
		Endpoint:         "products",
		URL:              "https://api.example.com/banking/products",
		RequestedVersion: 4,
		HTTPStatus:       200,
		RespondedVersion: 4,
		FetchedAt:        time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertPage(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO bronze.pages[\s\S]*ON CONFLICT \(provider_id, endpoint, page_num, as_of_date\) DO UPDATE`).
		WithArgs("run-1", "provider-1", "Example Bank", "products", "https://api.example.com/banking/products",
			1, "2026-08-29", 200, 4, pgxmock.AnyArg(), "", []byte(`{"data":{"products":[]}}`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertPage(context.Background(), model.Page{
		RunID:            "run-1",
		ProviderID:       "provider-1",
		BrandName:        "Example Bank",
		Endpoint:         "products",
		URL:              "https://api.example.com/banking/products",
		PageNum:          1,
		AsOf:             "2026-08-29",
		HTTPStatus:       200,
		RespondedVersion: 4,
		FetchedAt:        time.Now().UTC(),
		Payload:          []byte(`{"data":{"products":[]}}`),
		PayloadSHA256:    "abc123",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetBaseline_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT provider_id, endpoint, signature, hash, run_id, observed_at`).
		WithArgs("provider-1", "products").
		WillReturnError(pgx.ErrNoRows)

	baseline, err := s.GetBaseline(context.Background(), "provider-1", "products")
	require.NoError(t, err)
	assert.Nil(t, baseline)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetBaseline_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	observedAt := time.Now().UTC()
	mock.ExpectQuery(`SELECT provider_id, endpoint, signature, hash, run_id, observed_at`).
		WithArgs("provider-1", "products").
		WillReturnRows(pgxmock.NewRows([]string{"provider_id", "endpoint", "signature", "hash", "run_id", "observed_at"}).
			AddRow("provider-1", "products", []byte(`{"data.products[].name":"string"}`), "hash-1", "run-1", observedAt))

	baseline, err := s.GetBaseline(context.Background(), "provider-1", "products")
	require.NoError(t, err)
	require.NotNil(t, baseline)
	assert.Equal(t, "hash-1", baseline.Hash)
	assert.Equal(t, map[string]string{"data.products[].name": "string"}, baseline.Signature)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertDriftEvents_Copy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"meta", "schema_drift_events"},
		[]string{"run_id", "provider_id", "endpoint", "as_of_date", "kind", "field_path", "previous", "observed", "observed_at"}).
		WillReturnResult(2)

	events := []model.DriftEvent{
		{RunID: "run-1", ProviderID: "p1", Endpoint: "products", AsOf: "2026-08-29", Kind: model.DriftFieldAdded, FieldPath: "data.products[].fees", Observed: "array", ObservedAt: time.Now().UTC()},
		{RunID: "run-1", ProviderID: "p1", Endpoint: "products", AsOf: "2026-08-29", Kind: model.DriftTypeChanged, FieldPath: "data.products[].rate", Previous: "string", Observed: "number", ObservedAt: time.Now().UTC()},
	}
	require.NoError(t, s.InsertDriftEvents(context.Background(), events))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertDriftEvents_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	require.NoError(t, s.InsertDriftEvents(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ProvidersWithPages(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(DISTINCT provider_id\) FROM bronze.pages`).
		WithArgs("2026-08-29").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	n, err := s.ProvidersWithPages(context.Background(), "2026-08-29")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ProductRowCount_MissingRelation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// Neither candidate relation resolves.
	mock.ExpectQuery(`SELECT to_regclass`).
		WithArgs("silver.dim_products").
		WillReturnRows(pgxmock.NewRows([]string{"to_regclass"}).AddRow((*string)(nil)))
	mock.ExpectQuery(`SELECT to_regclass`).
		WithArgs("public_silver.dim_products").
		WillReturnRows(pgxmock.NewRows([]string{"to_regclass"}).AddRow((*string)(nil)))

	_, err := s.ProductRowCount(context.Background(), "2026-08-29")
	require.ErrorIs(t, err, ErrMissingRelation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ProductRowCount_Resolved(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rel := "silver.dim_products"
	mock.ExpectQuery(`SELECT to_regclass`).
		WithArgs("silver.dim_products").
		WillReturnRows(pgxmock.NewRows([]string{"to_regclass"}).AddRow(&rel))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM silver.dim_products`).
		WithArgs("2026-08-29").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(120)))

	n, err := s.ProductRowCount(context.Background(), "2026-08-29")
	require.NoError(t, err)
	assert.Equal(t, int64(120), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveQAResults_Copy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"meta", "qa_check_results"},
		[]string{"qa_run_id", "as_of_date", "name", "passed", "advisory", "observed", "threshold", "details", "evaluated_at"}).
		WillReturnResult(1)

	observed := 7.0
	threshold := 5.0
	results := []model.QACheckResult{
		{QARunID: "qa-1", AsOf: "2026-08-29", Name: "providers_ok", Passed: true, Observed: &observed, Threshold: &threshold, EvaluatedAt: time.Now().UTC()},
	}
	require.NoError(t, s.SaveQAResults(context.Background(), results))
	assert.NoError(t, mock.ExpectationsWereMet())
}
