package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/catalog-ingest/internal/model"
	"github.com/ledgerline/catalog-ingest/internal/store"
)

func newTestRouter(t *testing.T) (http.Handler, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	return buildRouter(st), st
}

func TestBuildRouter_Health(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestBuildRouter_RunLifecycle(t *testing.T) {
	router, st := newTestRouter(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "2026-08-29", "banking", false)
	require.NoError(t, err)
	require.NoError(t, st.AppendAPICall(ctx, model.APICall{
		RunID:            run.ID,
		ProviderID:       "prov-1",
		Endpoint:         "banking:get-products",
		URL:              "https://api.example.com/banking/products",
		RequestedVersion: 4,
		HTTPStatus:       200,
		RespondedVersion: 4,
	}))

	// List runs.
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs?as_of=2026-08-29", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var runs []model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	// Fetch one run.
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs/"+run.ID, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, model.RunStatusRunning, got.Status)

	// Audit trail.
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs/"+run.ID+"/calls", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var calls []model.APICall
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &calls))
	require.Len(t, calls, 1)
	assert.Equal(t, "banking:get-products", calls[0].Endpoint)
}

func TestBuildRouter_RunNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs/nonexistent", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "run not found")
}

func TestBuildRouter_Providers(t *testing.T) {
	router, st := newTestRouter(t)

	_, err := st.UpsertProviders(context.Background(), []model.Provider{
		{ID: "prov-1", Name: "First Bank", Industries: []string{"banking"}, BaseURI: "https://products.first.example.com"},
	})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/providers", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var providers []model.Provider
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &providers))
	require.Len(t, providers, 1)
	assert.Equal(t, "First Bank", providers[0].Name)
}

func TestBuildRouter_Drift(t *testing.T) {
	router, st := newTestRouter(t)

	require.NoError(t, st.InsertDriftEvents(context.Background(), []model.DriftEvent{
		{
			RunID:      "run-1",
			ProviderID: "prov-1",
			Endpoint:   "banking:get-products",
			AsOf:       "2026-08-29",
			Kind:       model.DriftFieldAdded,
			FieldPath:  "data.products[].newField",
			Observed:   "string",
		},
	}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/drift?provider=prov-1", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var events []model.DriftEvent
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, model.DriftFieldAdded, events[0].Kind)
}

func TestBuildRouter_QAResults(t *testing.T) {
	router, st := newTestRouter(t)

	observed := 12.0
	threshold := 1.0
	require.NoError(t, st.SaveQAResults(context.Background(), []model.QACheckResult{
		{
			QARunID:   "qa-1",
			AsOf:      "2026-08-29",
			Name:      "product_rows",
			Passed:    true,
			Observed:  &observed,
			Threshold: &threshold,
			Details:   "12 >= 1",
		},
	}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/qa/qa-1", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var results []model.QACheckResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.True(t, results[0].Passed)
}
