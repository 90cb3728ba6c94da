// Package verify reconciles entity data from multiple sources into one
// consensus record with field-level provenance.
package verify

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/longbox-labs/entity-verify/internal/model"
	"github.com/longbox-labs/entity-verify/internal/monitoring"
	"github.com/longbox-labs/entity-verify/internal/resilience"
	"github.com/longbox-labs/entity-verify/internal/source"
	"github.com/longbox-labs/entity-verify/internal/store"
)

// ErrNoData is returned when every configured source failed or had no match.
// The entity store is left untouched in that case.
var ErrNoData = eris.New("no_data: no sources returned data")

// SkipReasonRecent marks jobs skipped because the entity was verified within
// the freshness window and the job did not force a refresh.
const SkipReasonRecent = "recently_verified"

// Config controls reconciliation behavior.
type Config struct {
	// FreshnessWindow is how long a verification stays fresh. Entities
	// verified more recently are skipped unless the job forces a refresh.
	// Default: 168h.
	FreshnessWindow time.Duration

	// Retry configures the fetch client shared by all adapter calls.
	Retry resilience.RetryConfig
}

func (c Config) withDefaults() Config {
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = 168 * time.Hour
	}
	return c
}

// Reconciler fans one entity out to every configured source adapter, merges
// the returned records, and writes the consensus back to the entity store.
type Reconciler struct {
	store    store.Store
	registry *source.Registry
	fetcher  *resilience.Fetcher
	metrics  *monitoring.Metrics
	cfg      Config

	nowFunc func() time.Time
}

// NewReconciler creates a Reconciler. metrics may be nil.
func NewReconciler(st store.Store, registry *source.Registry, fetcher *resilience.Fetcher, metrics *monitoring.Metrics, cfg Config) *Reconciler {
	return &Reconciler{
		store:    st,
		registry: registry,
		fetcher:  fetcher,
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
		nowFunc:  time.Now,
	}
}

// fetchOutcome collects the result of one adapter fan-out slot.
type fetchOutcome struct {
	source   string
	record   *model.SourceRecord
	attempts int
	err      error
}

// VerifyEntity runs one verification job end to end: load the entity, fan
// out to all adapters, merge, and persist. Adapter failures contribute no
// data but do not fail the job; only total data unavailability does.
func (r *Reconciler) VerifyEntity(ctx context.Context, job model.VerificationJob) (*model.VerificationResult, error) {
	start := r.nowFunc()

	entity, err := r.store.GetEntity(ctx, job.TableType, job.EntityID)
	if err != nil {
		r.metrics.IncJob("failed")
		return nil, eris.Wrapf(err, "verify: load entity %d", job.EntityID)
	}
	if entity == nil {
		r.metrics.IncJob("failed")
		return nil, eris.Errorf("verify: entity not found: %s/%d", string(job.TableType), job.EntityID)
	}

	name := job.CanonicalName
	if name == "" {
		name = entity.CanonicalName
	}

	window := r.cfg.FreshnessWindow
	if job.MaxAgeHours > 0 {
		window = time.Duration(job.MaxAgeHours) * time.Hour
	}
	if !job.ForceRefresh && entity.LastVerifiedAt != nil {
		if age := r.nowFunc().Sub(*entity.LastVerifiedAt); age < window {
			zap.L().Debug("verify: skipping recently verified entity",
				zap.Int64("entity_id", job.EntityID),
				zap.Duration("age", age))
			r.metrics.IncJob("skipped")
			return &model.VerificationResult{
				EntityID:      job.EntityID,
				CanonicalName: name,
				Status:        entity.Status,
				Skipped:       true,
				SkipReason:    SkipReasonRecent,
				VerifiedAt:    *entity.LastVerifiedAt,
			}, nil
		}
	}

	outcomes := r.fanOut(ctx, name)

	attempts := make(map[string]int, len(outcomes))
	var records []*model.SourceRecord
	for _, o := range outcomes {
		if o.attempts > 0 {
			attempts[o.source] = o.attempts
		}
		if o.err != nil {
			r.metrics.IncAdapterFailure(o.source, failureCategory(o.err))
			zap.L().Warn("verify: source fetch failed",
				zap.String("source", o.source),
				zap.Int64("entity_id", job.EntityID),
				zap.Error(o.err))
			continue
		}
		if o.record != nil && len(o.record.Fields) > 0 {
			records = append(records, o.record)
		}
	}

	if len(records) == 0 {
		r.metrics.IncJob("failed")
		return nil, eris.Wrapf(ErrNoData, "verify: entity %d (%s)", job.EntityID, name)
	}

	rec := merge(records, r.nowFunc().UTC())

	if err := r.store.UpdateVerification(ctx, job.TableType, job.EntityID, rec); err != nil {
		r.metrics.IncJob("failed")
		return nil, eris.Wrapf(err, "verify: persist entity %d", job.EntityID)
	}

	r.metrics.AddConflicts(len(rec.SourceConflicts))
	r.metrics.IncJob("completed")
	r.metrics.ObserveJobDuration(r.nowFunc().Sub(start))

	sources := make([]string, 0, len(records))
	for _, sr := range records {
		sources = append(sources, sr.Source)
	}

	zap.L().Info("verify: entity reconciled",
		zap.Int64("entity_id", job.EntityID),
		zap.String("name", name),
		zap.String("status", string(rec.Status)),
		zap.Strings("sources", sources),
		zap.Int("fields", len(rec.VerifiedFields)),
		zap.Int("conflicts", len(rec.SourceConflicts)))

	return &model.VerificationResult{
		EntityID:         job.EntityID,
		CanonicalName:    name,
		Status:           rec.Status,
		SourcesUsed:      sources,
		PrimarySource:    rec.PrimaryDataSource,
		FieldCount:       len(rec.VerifiedFields),
		ConflictCount:    len(rec.SourceConflicts),
		AttemptsBySource: attempts,
		VerifiedAt:       rec.VerifiedAt,
	}, nil
}

// fanOut queries every adapter concurrently through the resilient fetch
// client. Slots preserve registration order so downstream iteration stays
// deterministic. Adapter errors are captured, never propagated as a group
// error, so one bad provider cannot cancel the others.
func (r *Reconciler) fanOut(ctx context.Context, name string) []fetchOutcome {
	adapters := r.registry.Adapters()
	outcomes := make([]fetchOutcome, len(adapters))

	var g errgroup.Group
	for i, a := range adapters {
		g.Go(func() error {
			fetchStart := r.nowFunc()
			record, attempts, err := resilience.Fetch(ctx, r.fetcher, a.Name(), r.cfg.Retry,
				func(ctx context.Context) (*model.SourceRecord, error) {
					return a.Fetch(ctx, name)
				})
			r.metrics.ObserveAdapterLatency(a.Name(), r.nowFunc().Sub(fetchStart))
			outcomes[i] = fetchOutcome{source: a.Name(), record: record, attempts: attempts, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if r.fetcher != nil {
		for _, st := range r.fetcher.Breakers().Snapshot() {
			r.metrics.SetBreakerState(st.Source, st.State)
		}
	}
	return outcomes
}

// failureCategory maps an adapter error to a metric label, keeping breaker
// rejections distinct from request failures.
func failureCategory(err error) string {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return "breaker_open"
	}
	return string(resilience.Categorize(err).Category)
}
