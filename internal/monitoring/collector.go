package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/longbox-labs/entity-verify/internal/model"
	"github.com/longbox-labs/entity-verify/internal/resilience"
	"github.com/longbox-labs/entity-verify/internal/store"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Queue depth per job state.
	Queue model.QueueCounts `json:"queue"`

	// Circuit breaker state per source.
	Breakers []resilience.Status `json:"circuit_breakers"`

	// Entity verification status counts per table.
	Entities map[string]map[string]int `json:"entities"`

	CollectedAt time.Time `json:"collected_at"`
}

// QueueStats abstracts the queue methods needed by the collector.
type QueueStats interface {
	Counts(ctx context.Context) (model.QueueCounts, error)
}

// Collector gathers a JSON health snapshot from the queue, the breaker
// registry, and the entity store.
type Collector struct {
	queue    QueueStats
	breakers *resilience.SourceBreakers
	store    store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(queue QueueStats, breakers *resilience.SourceBreakers, st store.Store) *Collector {
	return &Collector{queue: queue, breakers: breakers, store: st}
}

// Collect gathers a snapshot of pipeline health.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		Entities:    make(map[string]map[string]int),
		CollectedAt: time.Now().UTC(),
	}

	if c.queue != nil {
		counts, err := c.queue.Counts(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: queue counts")
		}
		snap.Queue = counts
	}

	if c.breakers != nil {
		snap.Breakers = c.breakers.Snapshot()
	}

	if c.store != nil {
		for _, table := range []model.TableType{model.TableCharacters, model.TableCreators} {
			counts, err := c.store.CountByStatus(ctx, table)
			if err != nil {
				return nil, eris.Wrapf(err, "monitoring: count %s by status", string(table))
			}
			byStatus := make(map[string]int, len(counts))
			for status, n := range counts {
				byStatus[string(status)] = n
			}
			snap.Entities[string(table)] = byStatus
		}
	}

	return snap, nil
}
