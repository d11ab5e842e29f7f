package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ledgerline/catalog-ingest/internal/crawl"
	"github.com/ledgerline/catalog-ingest/internal/model"
)

func TestSummarizeCrawl(t *testing.T) {
	results := []crawl.ProviderResult{
		{ProviderID: "a", Outcome: crawl.OutcomeDone, Pages: 3, Products: 12, DetailsOK: 12},
		{ProviderID: "b", Outcome: crawl.OutcomeCapped, Pages: 200, Products: 800},
		{ProviderID: "c", Outcome: crawl.OutcomeLoopDetected, Pages: 2, Products: 6},
		{ProviderID: "d", Outcome: crawl.OutcomeUnavailable},
		{ProviderID: "e", Outcome: crawl.OutcomeFailed, Pages: 1, Products: 4},
	}

	s := summarizeCrawl("run-1", "2026-08-29", model.RunStatusCompletedWithErrors, results)

	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, 5, s.Providers)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 1, s.Capped)
	assert.Equal(t, 1, s.Loops)
	assert.Equal(t, 206, s.Pages)
	assert.Equal(t, 822, s.Products)
	assert.Equal(t, 12, s.Details)
}

func TestSummarizeCrawl_Empty(t *testing.T) {
	s := summarizeCrawl("run-1", "2026-08-29", model.RunStatusCompleted, nil)

	assert.Equal(t, 0, s.Providers)
	assert.Equal(t, 0, s.Failed)
	assert.Equal(t, model.RunStatusCompleted, s.Status)
}
