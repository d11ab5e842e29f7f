// Package crawl walks each provider's paginated product list. Providers
// are crawled concurrently; pages within a provider strictly in order,
// each persisted and drift-checked before the next fetch.
package crawl

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerline/catalog-ingest/internal/config"
	"github.com/ledgerline/catalog-ingest/internal/drift"
	"github.com/ledgerline/catalog-ingest/internal/fetcher"
	"github.com/ledgerline/catalog-ingest/internal/model"
	"github.com/ledgerline/catalog-ingest/internal/raw"
)

// Endpoint names used in the audit trail and the bronze layout.
const (
	EndpointProducts      = "banking:get-products"
	EndpointProductDetail = "banking:get-product-detail"
)

// Outcome is the terminal state of one provider's crawl.
type Outcome string

const (
	OutcomeDone         Outcome = "done"          // server signalled no further pages
	OutcomeCapped       Outcome = "capped"        // page cap reached
	OutcomeLoopDetected Outcome = "loop_detected" // next URL repeated one already fetched
	OutcomeUnavailable  Outcome = "unavailable"   // first page failed, no pages recorded
	OutcomeFailed       Outcome = "failed"        // later page failed, earlier pages kept
)

// ProviderResult summarizes one provider's crawl.
type ProviderResult struct {
	ProviderID string  `json:"provider_id"`
	Outcome    Outcome `json:"outcome"`
	Pages      int     `json:"pages"`
	Products   int     `json:"products"`
	DetailsOK  int     `json:"details_ok,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// Failed reports whether the outcome reflects a fetch or storage failure.
// Capped and loop-detected crawls kept their pages and are diagnostics,
// not failures.
func (r ProviderResult) Failed() bool {
	return r.Outcome == OutcomeUnavailable || r.Outcome == OutcomeFailed
}

// Crawler fetches, stores and drift-checks product pages.
type Crawler struct {
	fetcher  *fetcher.Client
	raw      *raw.Store
	drift    *drift.Detector
	products config.EndpointConfig
	details  config.EndpointConfig
	cfg      config.CrawlConfig
}

// New creates a Crawler.
func New(f *fetcher.Client, rawStore *raw.Store, detector *drift.Detector, products, details config.EndpointConfig, cfg config.CrawlConfig) *Crawler {
	if cfg.MaxPagesPerProvider <= 0 {
		cfg.MaxPagesPerProvider = 200
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Crawler{
		fetcher:  f,
		raw:      rawStore,
		drift:    detector,
		products: products,
		details:  details,
		cfg:      cfg,
	}
}

// Run crawls all providers and returns one result per provider, in input
// order. Provider failures never abort the run; ctx cancellation does.
func (c *Crawler) Run(ctx context.Context, run *model.Run, providers []model.Provider) []ProviderResult {
	if c.cfg.ProviderLimit > 0 && len(providers) > c.cfg.ProviderLimit {
		zap.L().Info("provider limit applied",
			zap.Int("limit", c.cfg.ProviderLimit),
			zap.Int("discovered", len(providers)))
		providers = providers[:c.cfg.ProviderLimit]
	}

	results := make([]ProviderResult, len(providers))
	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Concurrency)
	for i, p := range providers {
		g.Go(func() error {
			results[i] = c.crawlProvider(ctx, run, p)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// listPayload is the defensively-parsed shape of a product list page.
type listPayload struct {
	Data  json.RawMessage `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

type productRef struct {
	ProductID string `json:"productId"`
}

// crawlProvider runs the page loop for one provider. Pages are strictly
// sequential: fetch, persist to both sinks, drift-check, then follow
// links.next.
func (c *Crawler) crawlProvider(ctx context.Context, run *model.Run, p model.Provider) ProviderResult {
	res := ProviderResult{ProviderID: p.ID, Outcome: OutcomeDone}
	log := zap.L().With(zap.String("provider_id", p.ID), zap.String("run_id", run.ID))

	nextURL := joinURL(p.BaseURI, c.products.Path)
	seen := make(map[string]bool)
	pageNum := 1
	var productIDs []string
	seenProducts := make(map[string]bool)

	for nextURL != "" {
		if err := ctx.Err(); err != nil {
			res.Outcome = OutcomeFailed
			res.Reason = err.Error()
			return res
		}
		if pageNum > c.cfg.MaxPagesPerProvider {
			log.Warn("page cap reached", zap.Int("max_pages", c.cfg.MaxPagesPerProvider))
			res.Outcome = OutcomeCapped
			res.Reason = "page cap reached"
			break
		}
		if seen[nextURL] {
			log.Warn("pagination loop detected", zap.String("url", nextURL))
			res.Outcome = OutcomeLoopDetected
			res.Reason = "pagination loop at " + nextURL
			break
		}
		seen[nextURL] = true

		resp, err := c.fetcher.Get(ctx, fetcher.Request{
			RunID:      run.ID,
			ProviderID: p.ID,
			Endpoint:   EndpointProducts,
			URL:        nextURL,
			Versions:   c.products.Versions(),
		})
		if err != nil {
			log.Warn("page fetch failed", zap.Int("page", pageNum), zap.Error(err))
			res.Outcome = outcomeForPage(pageNum)
			res.Reason = err.Error()
			return res
		}

		page := model.Page{
			RunID:            run.ID,
			ProviderID:       p.ID,
			BrandName:        p.Name,
			Endpoint:         EndpointProducts,
			URL:              nextURL,
			PageNum:          pageNum,
			AsOf:             run.AsOf,
			HTTPStatus:       resp.StatusCode,
			RespondedVersion: resp.RespondedVersion,
			FetchedAt:        resp.FetchedAt,
			ETag:             resp.ETag,
			Payload:          resp.Body,
		}
		if _, err := c.raw.SavePage(ctx, page); err != nil {
			log.Error("page store failed", zap.Int("page", pageNum), zap.Error(err))
			res.Outcome = outcomeForPage(pageNum)
			res.Reason = err.Error()
			return res
		}
		res.Pages++

		if resp.StatusCode != 200 {
			log.Warn("page returned non-200", zap.Int("page", pageNum), zap.Int("status", resp.StatusCode))
			res.Outcome = outcomeForPage(pageNum)
			res.Reason = "HTTP " + strconv.Itoa(resp.StatusCode)
			return res
		}

		var doc any
		if err := json.Unmarshal(resp.Body, &doc); err != nil {
			log.Warn("page payload is not valid JSON", zap.Int("page", pageNum), zap.Error(err))
			res.Outcome = outcomeForPage(pageNum)
			res.Reason = "invalid JSON payload"
			return res
		}

		// Drift is advisory: a detector error is logged, never fatal.
		if _, err := c.drift.Observe(ctx, run.ID, run.AsOf, p.ID, EndpointProducts, doc, resp.FetchedAt); err != nil {
			log.Warn("drift detection failed", zap.Error(err))
		}

		var parsed listPayload
		_ = json.Unmarshal(resp.Body, &parsed)
		for _, ref := range extractProducts(parsed.Data) {
			res.Products++
			if ref.ProductID != "" && !seenProducts[ref.ProductID] {
				seenProducts[ref.ProductID] = true
				productIDs = append(productIDs, ref.ProductID)
			}
		}

		nextURL = resolveNextURL(nextURL, parsed.Links.Next)
		pageNum++
	}

	if c.cfg.FetchDetails && len(productIDs) > 0 && !res.Failed() {
		res.DetailsOK = c.fetchDetails(ctx, run, p, productIDs)
	}

	log.Info("provider crawl finished",
		zap.String("outcome", string(res.Outcome)),
		zap.Int("pages", res.Pages),
		zap.Int("products", res.Products))
	return res
}

// fetchDetails issues one detail fetch per discovered product id. Failures
// are recorded in the audit trail and logged; they never fail the provider.
func (c *Crawler) fetchDetails(ctx context.Context, run *model.Run, p model.Provider, productIDs []string) int {
	log := zap.L().With(zap.String("provider_id", p.ID), zap.String("run_id", run.ID))
	ok := 0
	for _, pid := range productIDs {
		if ctx.Err() != nil {
			return ok
		}
		url := joinURL(p.BaseURI, strings.ReplaceAll(c.details.Path, "{productId}", pid))

		resp, err := c.fetcher.Get(ctx, fetcher.Request{
			RunID:      run.ID,
			ProviderID: p.ID,
			Endpoint:   EndpointProductDetail,
			URL:        url,
			Versions:   c.details.Versions(),
		})
		if err != nil {
			log.Warn("detail fetch failed", zap.String("product_id", pid), zap.Error(err))
			continue
		}

		detail := model.ProductDetail{
			RunID:            run.ID,
			ProviderID:       p.ID,
			BrandName:        p.Name,
			ProductID:        pid,
			URL:              url,
			AsOf:             run.AsOf,
			HTTPStatus:       resp.StatusCode,
			RespondedVersion: resp.RespondedVersion,
			FetchedAt:        resp.FetchedAt,
			ETag:             resp.ETag,
			Payload:          resp.Body,
		}
		if _, err := c.raw.SaveDetail(ctx, EndpointProductDetail, detail); err != nil {
			log.Warn("detail store failed", zap.String("product_id", pid), zap.Error(err))
			continue
		}

		if resp.StatusCode == 200 {
			var doc any
			if err := json.Unmarshal(resp.Body, &doc); err == nil {
				if _, err := c.drift.Observe(ctx, run.ID, run.AsOf, p.ID, EndpointProductDetail, doc, resp.FetchedAt); err != nil {
					log.Warn("drift detection failed", zap.Error(err))
				}
			}
			ok++
		}
	}
	return ok
}

// extractProducts reads product refs from data.products, tolerating
// payloads where data itself is the array.
func extractProducts(data json.RawMessage) []productRef {
	if len(data) == 0 {
		return nil
	}
	var wrapped struct {
		Products []productRef `json:"products"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Products != nil {
		return wrapped.Products
	}
	var bare []productRef
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare
	}
	return nil
}

// resolveNextURL resolves links.next against the current page URL,
// tolerating relative links. An empty or unparseable next ends pagination.
func resolveNextURL(currentURL, nextURL string) string {
	if nextURL == "" {
		return ""
	}
	next, err := url.Parse(nextURL)
	if err != nil {
		return ""
	}
	if next.IsAbs() {
		return nextURL
	}
	base, err := url.Parse(currentURL)
	if err != nil {
		return ""
	}
	return base.ResolveReference(next).String()
}

// outcomeForPage maps a page failure to the provider outcome: a failed
// first page means the provider was unavailable this run.
func outcomeForPage(pageNum int) Outcome {
	if pageNum == 1 {
		return OutcomeUnavailable
	}
	return OutcomeFailed
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
