package indexing

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appctx "github.com/AksahyDwivedi/pharmacy/internal/core/context"
	"github.com/AksahyDwivedi/pharmacy/internal/domain"
)

var tracer = otel.Tracer("pharmacy/indexing")

// ErrClosed is reported for tasks submitted after Close.
var ErrClosed = errors.New("mirror dispatcher closed")

var _ domain.Mirror = (*Dispatcher)(nil)

// DispatcherConfig configures the async mirror.
type DispatcherConfig struct {
	// Shards is the number of worker goroutines. Tasks for one document
	// always land on the same shard.
	Shards int

	// QueueSize bounds each shard queue. Submit blocks while the queue is full.
	QueueSize int

	// Timeout bounds a single task (default 10s).
	Timeout time.Duration
}

// DefaultDispatcherConfig returns defaults suitable for one process.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Shards:    8,
		QueueSize: 1024,
		Timeout:   10 * time.Second,
	}
}

type job struct {
	ctx  context.Context
	task domain.MirrorTask
}

// Dispatcher runs mirror tasks in the background. Each shard is a FIFO queue
// drained by one goroutine, so tasks sharing a key run in submission order.
type Dispatcher struct {
	cfg     DispatcherConfig
	monitor *Monitor
	shards  []chan job
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the shard workers.
func NewDispatcher(cfg DispatcherConfig, monitor *Monitor) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.Shards <= 0 {
		cfg.Shards = def.Shards
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if monitor == nil {
		monitor = NewMonitor(nil, nil)
	}

	d := &Dispatcher{
		cfg:     cfg,
		monitor: monitor,
		shards:  make([]chan job, cfg.Shards),
	}
	for i := range d.shards {
		d.shards[i] = make(chan job, cfg.QueueSize)
		d.wg.Add(1)
		go d.work(d.shards[i])
	}
	return d
}

// Submit queues task. The request context is detached: cancelling the
// request does not cancel its mirror.
func (d *Dispatcher) Submit(ctx context.Context, task domain.MirrorTask) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.monitor.Dropped(ctx, task, ErrClosed)
		return
	}
	d.monitor.Submitted(task)
	d.shards[shardOf(task.Key(), len(d.shards))] <- job{ctx: appctx.Detach(ctx), task: task}
}

// Close stops accepting tasks and waits until the queued ones ran or ctx
// expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, ch := range d.shards {
			close(ch)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued tasks.
func (d *Dispatcher) Pending() int {
	n := 0
	for _, ch := range d.shards {
		n += len(ch)
	}
	return n
}

func (d *Dispatcher) work(queue <-chan job) {
	defer d.wg.Done()
	for j := range queue {
		run(j.ctx, j.task, d.cfg.Timeout, d.monitor)
	}
}

// run executes one task with a timeout and reports the outcome.
func run(ctx context.Context, task domain.MirrorTask, timeout time.Duration, monitor *Monitor) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "mirror."+string(task.Op),
		trace.WithAttributes(
			attribute.String("entity", task.Entity),
			attribute.Int64("id", task.ID),
		),
	)
	defer span.End()

	err := safeRun(ctx, task)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	monitor.Done(ctx, task, err)
}

func safeRun(ctx context.Context, task domain.MirrorTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mirror task panicked: %v", r)
		}
	}()
	return task.Run(ctx)
}

func shardOf(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
