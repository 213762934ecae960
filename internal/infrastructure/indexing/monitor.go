// Package indexing runs mirror tasks against the search indexes, records the
// ones that fail and repairs or rebuilds indexes from the primary store.
package indexing

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AksahyDwivedi/pharmacy/internal/domain"
	"github.com/AksahyDwivedi/pharmacy/pkg/logger"
)

var meter = otel.Meter("pharmacy/indexing")

// Stats is a snapshot of mirror outcomes since start.
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Journaled int    `json:"journaled"`
}

// Monitor observes mirror task outcomes: it keeps counters, logs failures
// and writes them to the journal.
type Monitor struct {
	log     *logger.Logger
	journal *Journal

	submitted atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64

	outcomes metric.Int64Counter
}

// NewMonitor creates a monitor. journal may be nil.
func NewMonitor(journal *Journal, log *logger.Logger) *Monitor {
	if log == nil {
		log = logger.Nop()
	}
	outcomes, err := meter.Int64Counter("pharmacy.mirror.tasks",
		metric.WithDescription("Mirror tasks by entity, operation and outcome"))
	if err != nil {
		log.Warnw("mirror counter unavailable", "error", err)
	}
	return &Monitor{
		log:      log.WithComponent("mirror"),
		journal:  journal,
		outcomes: outcomes,
	}
}

// Submitted counts an accepted task.
func (m *Monitor) Submitted(task domain.MirrorTask) {
	m.submitted.Add(1)
}

// Done records the outcome of a task.
func (m *Monitor) Done(ctx context.Context, task domain.MirrorTask, err error) {
	if err == nil {
		m.succeeded.Add(1)
		m.count(ctx, task, "ok")
		return
	}

	m.failed.Add(1)
	m.count(ctx, task, "failed")
	m.log.WithContext(ctx).Warnw("mirror failed",
		"entity", task.Entity, "id", task.ID, "op", task.Op, "error", err)
	m.journalize(task, err)
}

// Dropped records a task that was never run, e.g. submitted after shutdown.
func (m *Monitor) Dropped(ctx context.Context, task domain.MirrorTask, reason error) {
	m.dropped.Add(1)
	m.count(ctx, task, "dropped")
	m.log.WithContext(ctx).Warnw("mirror dropped",
		"entity", task.Entity, "id", task.ID, "op", task.Op, "reason", reason)
	m.journalize(task, reason)
}

// Stats returns the current counters.
func (m *Monitor) Stats() Stats {
	s := Stats{
		Submitted: m.submitted.Load(),
		Succeeded: m.succeeded.Load(),
		Failed:    m.failed.Load(),
		Dropped:   m.dropped.Load(),
	}
	if m.journal != nil {
		if n, err := m.journal.Len(); err == nil {
			s.Journaled = n
		}
	}
	return s
}

func (m *Monitor) journalize(task domain.MirrorTask, cause error) {
	if m.journal == nil {
		return
	}
	if err := m.journal.Record(task, cause); err != nil {
		m.log.Errorw("journal write failed", "key", task.Key(), "error", err)
	}
}

func (m *Monitor) count(ctx context.Context, task domain.MirrorTask, outcome string) {
	if m.outcomes == nil {
		return
	}
	m.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", task.Entity),
		attribute.String("op", string(task.Op)),
		attribute.String("outcome", outcome),
	))
}
