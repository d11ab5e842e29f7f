package drift

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ledgerline/catalog-ingest/internal/model"
)

// BaselineStore persists per-(provider, endpoint) baselines and drift events.
type BaselineStore interface {
	GetBaseline(ctx context.Context, providerID, endpoint string) (*model.Baseline, error)
	SaveBaseline(ctx context.Context, baseline model.Baseline) error
	InsertDriftEvents(ctx context.Context, events []model.DriftEvent) error
}

// Detector compares page signatures against stored baselines. Baselines are
// keyed state owned by the provider crawl that feeds them: within one
// provider pages arrive sequentially, so no locking is needed here.
type Detector struct {
	store BaselineStore
}

// NewDetector creates a Detector backed by the given store.
func NewDetector(store BaselineStore) *Detector {
	return &Detector{store: store}
}

// Observe computes the payload's signature and diffs it against the stored
// baseline. The first observation for a (provider, endpoint) establishes
// the baseline and emits nothing. A changed signature emits one DriftEvent
// per changed path and replaces the baseline, so repeated pages with the
// same new shape do not re-trigger. Returns the emitted events.
func (d *Detector) Observe(ctx context.Context, runID, asOf, providerID, endpoint string, payload any, observedAt time.Time) ([]model.DriftEvent, error) {
	sig := Extract(payload)
	hash := sig.Hash()

	baseline, err := d.store.GetBaseline(ctx, providerID, endpoint)
	if err != nil {
		return nil, eris.Wrap(err, "drift: load baseline")
	}

	if baseline != nil && baseline.Hash == hash {
		return nil, nil
	}

	newBaseline := model.Baseline{
		ProviderID: providerID,
		Endpoint:   endpoint,
		Signature:  sig,
		Hash:       hash,
		RunID:      runID,
		ObservedAt: observedAt,
	}

	if baseline == nil {
		if err := d.store.SaveBaseline(ctx, newBaseline); err != nil {
			return nil, eris.Wrap(err, "drift: establish baseline")
		}
		return nil, nil
	}

	changes := Diff(baseline.Signature, sig)
	events := make([]model.DriftEvent, 0, len(changes))
	for _, ch := range changes {
		events = append(events, model.DriftEvent{
			RunID:      runID,
			ProviderID: providerID,
			Endpoint:   endpoint,
			AsOf:       asOf,
			Kind:       ch.Kind,
			FieldPath:  ch.Path,
			Previous:   ch.Previous,
			Observed:   ch.Observed,
			ObservedAt: observedAt,
		})
	}

	if len(events) > 0 {
		if err := d.store.InsertDriftEvents(ctx, events); err != nil {
			return nil, eris.Wrap(err, "drift: insert events")
		}
	}

	// The new shape becomes the reference for the next comparison.
	if err := d.store.SaveBaseline(ctx, newBaseline); err != nil {
		return events, eris.Wrap(err, "drift: replace baseline")
	}
	return events, nil
}
