package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ledgerline/catalog-ingest/internal/model"
	"github.com/ledgerline/catalog-ingest/internal/qa"
)

func TestFormatQAReport(t *testing.T) {
	observed := 42.0
	threshold := 10.0

	report := &qa.Report{
		QARunID: "qa-run-1",
		AsOf:    "2026-08-29",
		Passed:  false,
		Results: []model.QACheckResult{
			{Name: "product_rows", Passed: true, Observed: &observed, Threshold: &threshold, Details: "42 >= 10"},
			{Name: "drift_events", Passed: false, Advisory: true, Details: "3 drift events recorded"},
			{Name: "freshness_hours", Passed: false, Details: "no successful pages on date"},
		},
	}

	var buf bytes.Buffer
	formatQAReport(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "product_rows")
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "FAIL (advisory)")
	assert.Contains(t, out, "no successful pages on date")
	assert.Contains(t, out, "QA gate FAILED for 2026-08-29")
	assert.Contains(t, out, "qa-run-1")
}

func TestFormatMetric(t *testing.T) {
	assert.Equal(t, "-", formatMetric(nil))

	v := 36.5
	assert.Equal(t, "36.5", formatMetric(&v))
}
