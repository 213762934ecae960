package indexing

import (
	"context"
	"sync"
	"time"

	appctx "github.com/AksahyDwivedi/pharmacy/internal/core/context"
	"github.com/AksahyDwivedi/pharmacy/internal/domain"
)

var _ domain.Mirror = (*Inline)(nil)

// Inline runs mirror tasks on the caller goroutine before the write returns.
// Tasks for one key are serialized by a striped lock; the outcome is still
// only reported to the monitor.
type Inline struct {
	timeout time.Duration
	monitor *Monitor
	stripes []sync.Mutex
}

// NewInline creates a synchronous mirror with the given number of lock stripes.
func NewInline(stripes int, timeout time.Duration, monitor *Monitor) *Inline {
	if stripes <= 0 {
		stripes = 64
	}
	if timeout <= 0 {
		timeout = DefaultDispatcherConfig().Timeout
	}
	if monitor == nil {
		monitor = NewMonitor(nil, nil)
	}
	return &Inline{
		timeout: timeout,
		monitor: monitor,
		stripes: make([]sync.Mutex, stripes),
	}
}

func (in *Inline) Submit(ctx context.Context, task domain.MirrorTask) {
	in.monitor.Submitted(task)

	mu := &in.stripes[shardOf(task.Key(), len(in.stripes))]
	mu.Lock()
	defer mu.Unlock()

	run(appctx.Detach(ctx), task, in.timeout, in.monitor)
}
