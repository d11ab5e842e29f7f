// Package directory discovers providers from the public register: one
// fetch per run, filtered to the target industry, with each provider's
// effective product-API base URI resolved.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ledgerline/catalog-ingest/internal/bronze"
	"github.com/ledgerline/catalog-ingest/internal/config"
	"github.com/ledgerline/catalog-ingest/internal/fetcher"
	"github.com/ledgerline/catalog-ingest/internal/model"
)

// EndpointRegister names the discovery endpoint in the audit trail and the
// bronze layout.
const EndpointRegister = "register:brands-summary"

// registerProviderID identifies the register itself in the audit trail,
// which predates any discovered provider.
const registerProviderID = "register"

// ProviderSink persists discovered providers.
type ProviderSink interface {
	UpsertProviders(ctx context.Context, providers []model.Provider) (int64, error)
}

// Service fetches and filters the register's brand summary.
type Service struct {
	fetcher *fetcher.Client
	sink    ProviderSink
	files   *bronze.FileSink
	cfg     config.RegisterConfig
}

// New creates a discovery Service.
func New(f *fetcher.Client, sink ProviderSink, files *bronze.FileSink, cfg config.RegisterConfig) *Service {
	return &Service{fetcher: f, sink: sink, files: files, cfg: cfg}
}

// brandRecord is the register's wire shape for one brand.
type brandRecord struct {
	DataHolderBrandID string   `json:"dataHolderBrandId"`
	BrandName         string   `json:"brandName"`
	BrandGroup        string   `json:"brandGroup"`
	Industries        []string `json:"industries"`
	PublicBaseURI     string   `json:"publicBaseUri"`
	ProductBaseURI    string   `json:"productBaseUri"`
	LastUpdated       string   `json:"lastUpdated"`
}

type brandsSummary struct {
	Data []brandRecord `json:"data"`
}

// Discover fetches the register once, writes the raw response to the bronze
// sink, filters brands to the configured industry, resolves base URIs, and
// persists the surviving providers. Discovery failure is fatal to the run;
// a malformed brand is skipped with a diagnostic.
func (s *Service) Discover(ctx context.Context, runID, asOf string) ([]model.Provider, error) {
	url := fmt.Sprintf("%s/v1/%s/data-holders/brands/summary",
		strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.Industry)

	resp, err := s.fetcher.Get(ctx, fetcher.Request{
		RunID:      runID,
		ProviderID: registerProviderID,
		Endpoint:   EndpointRegister,
		URL:        url,
		Versions:   s.cfg.Versions(),
	})
	if err != nil {
		return nil, eris.Wrap(err, "directory: register fetch")
	}

	// The raw register response is bronze data like any page.
	if _, err := s.files.WritePage(asOf, registerProviderID, EndpointRegister, 1, resp.Body); err != nil {
		return nil, eris.Wrap(err, "directory: write register page")
	}

	if resp.StatusCode != 200 {
		return nil, eris.Errorf("directory: register discovery failed: HTTP %d", resp.StatusCode)
	}

	var summary brandsSummary
	if err := json.Unmarshal(resp.Body, &summary); err != nil {
		return nil, eris.Wrap(err, "directory: parse register response")
	}

	filter := strings.ToLower(strings.TrimSpace(s.cfg.FilterIndustry))
	providers := make([]model.Provider, 0, len(summary.Data))
	for _, b := range summary.Data {
		if !advertisesIndustry(b.Industries, filter) {
			continue
		}
		baseURI := b.ProductBaseURI
		if baseURI == "" {
			baseURI = b.PublicBaseURI
		}
		if b.DataHolderBrandID == "" || baseURI == "" {
			zap.L().Warn("skipping brand with missing id or base uri",
				zap.String("brand_name", b.BrandName),
				zap.String("brand_id", b.DataHolderBrandID))
			continue
		}
		providers = append(providers, model.Provider{
			ID:          b.DataHolderBrandID,
			Name:        b.BrandName,
			Group:       b.BrandGroup,
			Industries:  b.Industries,
			BaseURI:     baseURI,
			LastUpdated: b.LastUpdated,
		})
	}

	if _, err := s.sink.UpsertProviders(ctx, providers); err != nil {
		return nil, eris.Wrap(err, "directory: persist providers")
	}

	zap.L().Info("register discovery complete",
		zap.Int("brands", len(summary.Data)),
		zap.Int("providers", len(providers)),
		zap.String("industry", filter))
	return providers, nil
}

func advertisesIndustry(industries []string, filter string) bool {
	for _, ind := range industries {
		if strings.ToLower(strings.TrimSpace(ind)) == filter {
			return true
		}
	}
	return false
}
