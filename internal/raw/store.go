// Package raw is the idempotent raw store: every fetched payload lands in
// two sinks, the partitioned bronze file tree and the structured database.
// A page either reaches both sinks or neither.
package raw

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/rotisserie/eris"

	"github.com/ledgerline/catalog-ingest/internal/bronze"
	"github.com/ledgerline/catalog-ingest/internal/model"
)

// Sink is the structured side of the raw store.
type Sink interface {
	UpsertPage(ctx context.Context, page model.Page) error
	UpsertProductDetail(ctx context.Context, detail model.ProductDetail) error
}

// Store writes each payload to the file sink and the structured sink,
// staging the file first so a structured-sink failure leaves no file behind.
type Store struct {
	files *bronze.FileSink
	sink  Sink
}

// New creates a Store over the two sinks.
func New(files *bronze.FileSink, sink Sink) *Store {
	return &Store{files: files, sink: sink}
}

// SavePage persists one page to both sinks and returns the bronze file path.
// The payload hash is computed here when the caller did not set it. Saving
// the same logical key (provider, endpoint, page, as-of date) again replaces
// both the row and the file.
func (s *Store) SavePage(ctx context.Context, page model.Page) (string, error) {
	if page.PayloadSHA256 == "" {
		page.PayloadSHA256 = HashPayload(page.Payload)
	}

	promote, discard, err := s.files.Stage(page.AsOf, page.ProviderID, page.Endpoint, page.PageNum, page.Payload)
	if err != nil {
		return "", eris.Wrap(err, "raw: stage page file")
	}

	if err := s.sink.UpsertPage(ctx, page); err != nil {
		discard()
		return "", eris.Wrap(err, "raw: structured sink write")
	}

	if err := promote(); err != nil {
		return "", eris.Wrap(err, "raw: promote page file")
	}
	return s.files.PagePath(page.AsOf, page.ProviderID, page.Endpoint, page.PageNum), nil
}

// SaveDetail persists one product-detail document to both sinks.
func (s *Store) SaveDetail(ctx context.Context, endpoint string, detail model.ProductDetail) (string, error) {
	if detail.PayloadSHA256 == "" {
		detail.PayloadSHA256 = HashPayload(detail.Payload)
	}

	promote, discard, err := s.files.StageDetail(detail.AsOf, detail.ProviderID, endpoint, detail.ProductID, detail.Payload)
	if err != nil {
		return "", eris.Wrap(err, "raw: stage detail file")
	}

	if err := s.sink.UpsertProductDetail(ctx, detail); err != nil {
		discard()
		return "", eris.Wrap(err, "raw: structured sink write")
	}

	if err := promote(); err != nil {
		return "", eris.Wrap(err, "raw: promote detail file")
	}
	return s.files.DetailPath(detail.AsOf, detail.ProviderID, endpoint, detail.ProductID), nil
}

// HashPayload returns the hex-encoded SHA-256 of the payload bytes.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
