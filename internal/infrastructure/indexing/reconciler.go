package indexing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/AksahyDwivedi/pharmacy/internal/core/apperror"
	"github.com/AksahyDwivedi/pharmacy/internal/core/id"
	"github.com/AksahyDwivedi/pharmacy/internal/domain"
	"github.com/AksahyDwivedi/pharmacy/pkg/logger"
)

// Target is an entity whose index can be refreshed per document or rebuilt.
// *domain.IndexedRepository satisfies it.
type Target interface {
	Name() string
	Refresh(ctx context.Context, entityID id.ID) error
	Reindex(ctx context.Context, batchSize int) (domain.ReindexStats, error)
}

// ReconcilerConfig configures the reconciler.
type ReconcilerConfig struct {
	Workers   int           // concurrent entity rebuilds (default 4)
	BatchSize int           // rows per reindex page (default 500)
	Interval  time.Duration // Run period; 0 disables the loop
}

// RepairStats reports the outcome of Repair.
type RepairStats struct {
	Pending  int `json:"pending"`
	Repaired int `json:"repaired"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
	Requeued int `json:"requeued"`
}

// Reconciler brings search indexes back in line with the primary store.
type Reconciler struct {
	cfg     ReconcilerConfig
	journal *Journal
	log     *logger.Logger

	mu      sync.Mutex // one repair or reindex at a time
	targets map[string]Target
}

func NewReconciler(cfg ReconcilerConfig, journal *Journal, log *logger.Logger) *Reconciler {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Reconciler{
		cfg:     cfg,
		journal: journal,
		log:     log.WithComponent("reconciler"),
		targets: make(map[string]Target),
	}
}

// Register adds a target. Registration happens during wiring only.
func (r *Reconciler) Register(t Target) {
	r.targets[t.Name()] = t
}

// Entities returns the registered entity names ordered.
func (r *Reconciler) Entities() []string {
	names := make([]string, 0, len(r.targets))
	for name := range r.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Repair refreshes every document recorded in the journal and resolves the
// entries that succeed.
func (r *Reconciler) Repair(ctx context.Context) (RepairStats, error) {
	var stats RepairStats
	if r.journal == nil {
		return stats, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.journal.Pending()
	if err != nil {
		return stats, fmt.Errorf("read journal: %w", err)
	}
	stats.Pending = len(entries)

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		target, ok := r.targets[e.Entity]
		if !ok {
			r.log.Warnw("dropping journal entry of unknown entity", "key", e.Key())
			stats.Skipped++
			if err := r.journal.Resolve(e.Entity, e.ID); err != nil {
				return stats, fmt.Errorf("resolve %s: %w", e.Key(), err)
			}
			continue
		}

		if err := target.Refresh(ctx, e.ID); err != nil {
			stats.Failed++
			r.log.Warnw("repair failed", "key", e.Key(), "attempts", e.Attempts+1, "error", err)
			task := domain.MirrorTask{Entity: e.Entity, ID: e.ID, Op: e.Op}
			if jerr := r.journal.Record(task, err); jerr != nil {
				return stats, fmt.Errorf("record %s: %w", e.Key(), jerr)
			}
			continue
		}

		resolved, err := r.journal.ResolveEntry(e)
		if err != nil {
			return stats, fmt.Errorf("resolve %s: %w", e.Key(), err)
		}
		if !resolved {
			// Failed again while it was being repaired; the next pass retries.
			stats.Requeued++
			continue
		}
		stats.Repaired++
	}

	if stats.Pending > 0 {
		r.log.Infow("repair finished",
			"pending", stats.Pending, "repaired", stats.Repaired,
			"failed", stats.Failed, "skipped", stats.Skipped, "requeued", stats.Requeued)
	}
	return stats, nil
}

// Reindex rebuilds the indexes of entities (all when none given) from the
// primary store. Entities are rebuilt concurrently.
func (r *Reconciler) Reindex(ctx context.Context, entities ...string) ([]domain.ReindexStats, error) {
	if len(entities) == 0 {
		entities = r.Entities()
	}
	targets := make([]Target, 0, len(entities))
	for _, name := range entities {
		t, ok := r.targets[name]
		if !ok {
			return nil, apperror.NewValidation("unknown entity").WithDetail("entity", name)
		}
		targets = append(targets, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pool, err := ants.NewPool(r.cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("create reindex pool: %w", err)
	}
	defer pool.Release()

	started := time.Now().UTC()

	var (
		wg      sync.WaitGroup
		resMu   sync.Mutex
		results = make([]domain.ReindexStats, 0, len(targets))
		errs    []error
	)
	for _, t := range targets {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			stats, err := t.Reindex(ctx, r.cfg.BatchSize)

			resMu.Lock()
			defer resMu.Unlock()
			results = append(results, stats)
			if err != nil {
				errs = append(errs, err)
				return
			}
			r.log.Infow("reindexed", "entity", stats.Entity,
				"indexed", stats.Indexed, "orphans", stats.Orphans,
				"resynced", stats.Resynced, "failures", stats.Failures)
		}); err != nil {
			wg.Done()
			resMu.Lock()
			errs = append(errs, fmt.Errorf("schedule %s: %w", t.Name(), err))
			resMu.Unlock()
		}
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Entity < results[j].Entity })

	if err := errors.Join(errs...); err != nil {
		return results, err
	}
	r.resolveBefore(started, entities)
	return results, nil
}

// resolveBefore drops journal entries of rebuilt entities that failed before
// the rebuild started; the rebuild already covered them.
func (r *Reconciler) resolveBefore(t time.Time, entities []string) {
	if r.journal == nil {
		return
	}
	rebuilt := make(map[string]bool, len(entities))
	for _, e := range entities {
		rebuilt[e] = true
	}

	entries, err := r.journal.Pending()
	if err != nil {
		r.log.Warnw("read journal after reindex", "error", err)
		return
	}
	for _, e := range entries {
		if rebuilt[e.Entity] && e.FailedAt.Before(t) {
			if _, err := r.journal.ResolveEntry(e); err != nil {
				r.log.Warnw("resolve after reindex", "key", e.Key(), "error", err)
			}
		}
	}
}

// Run repairs the journal every Interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	if r.cfg.Interval <= 0 || r.journal == nil {
		return
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Repair(ctx); err != nil && ctx.Err() == nil {
				r.log.Errorw("repair failed", "error", err)
			}
		}
	}
}
