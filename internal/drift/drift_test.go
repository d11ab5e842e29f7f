package drift

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/catalog-ingest/internal/model"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestExtract_PathsAndTypes(t *testing.T) {
	payload := decode(t, `{
		"data": {
			"products": [
				{"productId": "p1", "rate": 4.5, "active": true, "meta": null}
			]
		},
		"links": {"next": "/page2"}
	}`)

	sig := Extract(payload)
	assert.Equal(t, "object", sig["data"])
	assert.Equal(t, "array", sig["data.products"])
	assert.Equal(t, "object", sig["data.products[]"])
	assert.Equal(t, "string", sig["data.products[].productId"])
	assert.Equal(t, "number", sig["data.products[].rate"])
	assert.Equal(t, "bool", sig["data.products[].active"])
	assert.Equal(t, "null", sig["data.products[].meta"])
	assert.Equal(t, "string", sig["links.next"])
}

func TestExtract_MixedArrayTypes(t *testing.T) {
	sig := Extract(decode(t, `{"data": ["a", 1]}`))
	assert.Equal(t, "mixed", sig["data[]"])
}

func TestHash_StableAcrossKeyOrder(t *testing.T) {
	a := Extract(decode(t, `{"x": 1, "y": "s"}`))
	b := Extract(decode(t, `{"y": "s", "x": 1}`))
	assert.Equal(t, a.Hash(), b.Hash())

	c := Extract(decode(t, `{"x": "1", "y": "s"}`))
	assert.NotEqual(t, a.Hash(), c.Hash())
}

func TestDiff(t *testing.T) {
	oldSig := Signature{"a": "string", "b": "number", "c": "bool"}
	newSig := Signature{"a": "string", "b": "string", "d": "object"}

	changes := Diff(oldSig, newSig)
	require.Len(t, changes, 3)

	// Ordered by path: b (type change), c (removed), d (added).
	assert.Equal(t, model.DriftTypeChanged, changes[0].Kind)
	assert.Equal(t, "b", changes[0].Path)
	assert.Equal(t, "number", changes[0].Previous)
	assert.Equal(t, "string", changes[0].Observed)

	assert.Equal(t, model.DriftFieldRemoved, changes[1].Kind)
	assert.Equal(t, "c", changes[1].Path)

	assert.Equal(t, model.DriftFieldAdded, changes[2].Kind)
	assert.Equal(t, "d", changes[2].Path)
}

// memBaselines is an in-memory BaselineStore.
type memBaselines struct {
	baselines map[string]model.Baseline
	events    []model.DriftEvent
}

func newMemBaselines() *memBaselines {
	return &memBaselines{baselines: make(map[string]model.Baseline)}
}

func (m *memBaselines) GetBaseline(_ context.Context, providerID, endpoint string) (*model.Baseline, error) {
	b, ok := m.baselines[providerID+"|"+endpoint]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *memBaselines) SaveBaseline(_ context.Context, b model.Baseline) error {
	m.baselines[b.ProviderID+"|"+b.Endpoint] = b
	return nil
}

func (m *memBaselines) InsertDriftEvents(_ context.Context, events []model.DriftEvent) error {
	m.events = append(m.events, events...)
	return nil
}

func TestObserve_TransitionSemantics(t *testing.T) {
	ctx := context.Background()
	store := newMemBaselines()
	det := NewDetector(store)
	now := time.Now().UTC()

	shapeA := decode(t, `{"data": {"products": [{"productId": "p1"}]}}`)
	shapeB := decode(t, `{"data": {"products": [{"productId": "p1", "rate": 1.5}]}}`)

	// First page establishes the baseline, no events.
	events, err := det.Observe(ctx, "run-1", "2026-08-29", "prov-a", "products", shapeA, now)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Empty(t, store.events)

	// Identical shape: nothing.
	events, err = det.Observe(ctx, "run-1", "2026-08-29", "prov-a", "products", shapeA, now)
	require.NoError(t, err)
	assert.Empty(t, events)

	// Changed shape: one event per changed path, baseline replaced.
	events, err = det.Observe(ctx, "run-1", "2026-08-29", "prov-a", "products", shapeB, now)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.DriftFieldAdded, events[0].Kind)
	assert.Equal(t, "data.products[].rate", events[0].FieldPath)
	assert.Equal(t, "number", events[0].Observed)

	// Same new shape again: drift reported once per transition, not per page.
	events, err = det.Observe(ctx, "run-1", "2026-08-29", "prov-a", "products", shapeB, now)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Len(t, store.events, 1)
}

func TestObserve_BaselinesAreScopedPerProviderEndpoint(t *testing.T) {
	ctx := context.Background()
	store := newMemBaselines()
	det := NewDetector(store)
	now := time.Now().UTC()

	shape := decode(t, `{"data": []}`)

	_, err := det.Observe(ctx, "r", "2026-08-29", "prov-a", "products", shape, now)
	require.NoError(t, err)

	// A different provider observing the same shape establishes its own
	// baseline rather than diffing against prov-a's.
	events, err := det.Observe(ctx, "r", "2026-08-29", "prov-b", "products", shape, now)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Len(t, store.baselines, 2)
}
