package indexing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AksahyDwivedi/pharmacy/internal/core/id"
	"github.com/AksahyDwivedi/pharmacy/internal/domain"
)

// recorder collects the order in which tasks ran per key.
type recorder struct {
	mu  sync.Mutex
	ran map[string][]int
}

func newRecorder() *recorder {
	return &recorder{ran: make(map[string][]int)}
}

func (r *recorder) task(entityID id.ID, seq int) domain.MirrorTask {
	task := domain.MirrorTask{Entity: "medicines", ID: entityID, Op: domain.MirrorIndex}
	task.Run = func(ctx context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.ran[task.Key()] = append(r.ran[task.Key()], seq)
		return nil
	}
	return task
}

func TestDispatcher_PreservesOrderPerKey(t *testing.T) {
	monitor := NewMonitor(nil, nil)
	d := NewDispatcher(DispatcherConfig{Shards: 4, QueueSize: 16}, monitor)
	rec := newRecorder()

	const perKey = 50
	for seq := 0; seq < perKey; seq++ {
		for entityID := id.ID(1); entityID <= 5; entityID++ {
			d.Submit(context.Background(), rec.task(entityID, seq))
		}
	}
	require.NoError(t, d.Close(context.Background()))

	require.Len(t, rec.ran, 5)
	for key, seqs := range rec.ran {
		require.Len(t, seqs, perKey, key)
		for i := range seqs {
			assert.Equal(t, i, seqs[i], key)
		}
	}

	stats := monitor.Stats()
	assert.Equal(t, uint64(5*perKey), stats.Submitted)
	assert.Equal(t, uint64(5*perKey), stats.Succeeded)
	assert.Zero(t, stats.Failed)
}

func TestDispatcher_DetachesRequestContext(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Shards: 1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var sawErr atomic.Value
	d.Submit(ctx, domain.MirrorTask{Entity: "medicines", ID: 1, Op: domain.MirrorIndex,
		Run: func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			sawErr.Store(errOrNil{ctx.Err()})
			return nil
		}})
	cancel()

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, errOrNil{}, sawErr.Load())
}

type errOrNil struct{ err error }

func TestDispatcher_FailuresGoToJournal(t *testing.T) {
	j := newTestJournal(t)
	monitor := NewMonitor(j, nil)
	d := NewDispatcher(DispatcherConfig{Shards: 2}, monitor)

	d.Submit(context.Background(), domain.MirrorTask{Entity: "medicines", ID: 7, Op: domain.MirrorIndex,
		Run: func(ctx context.Context) error { return errors.New("index down") }})
	d.Submit(context.Background(), domain.MirrorTask{Entity: "medicines", ID: 8, Op: domain.MirrorIndex,
		Run: func(ctx context.Context) error { panic("boom") }})
	require.NoError(t, d.Close(context.Background()))

	stats := monitor.Stats()
	assert.Equal(t, uint64(2), stats.Failed)
	assert.Equal(t, 2, stats.Journaled)

	entries, err := j.Pending()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "index down", entries[0].Error)
	assert.Contains(t, entries[1].Error, "boom")
}

func TestDispatcher_TimesOutSlowTasks(t *testing.T) {
	monitor := NewMonitor(nil, nil)
	d := NewDispatcher(DispatcherConfig{Shards: 1, Timeout: 20 * time.Millisecond}, monitor)

	d.Submit(context.Background(), domain.MirrorTask{Entity: "medicines", ID: 1, Op: domain.MirrorIndex,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}})
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, uint64(1), monitor.Stats().Failed)
}

func TestDispatcher_SubmitAfterCloseIsDropped(t *testing.T) {
	j := newTestJournal(t)
	monitor := NewMonitor(j, nil)
	d := NewDispatcher(DispatcherConfig{Shards: 1}, monitor)
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	ran := false
	d.Submit(context.Background(), domain.MirrorTask{Entity: "medicines", ID: 3, Op: domain.MirrorDelete,
		Run: func(ctx context.Context) error { ran = true; return nil }})

	assert.False(t, ran)
	stats := monitor.Stats()
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Equal(t, 1, stats.Journaled)
}

func TestInline_RunsBeforeReturning(t *testing.T) {
	monitor := NewMonitor(nil, nil)
	in := NewInline(4, time.Second, monitor)
	rec := newRecorder()

	var wg sync.WaitGroup
	for seq := 0; seq < 20; seq++ {
		in.Submit(context.Background(), rec.task(1, seq))
	}
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in.Submit(context.Background(), rec.task(2, 0))
		}()
	}
	wg.Wait()

	assert.Len(t, rec.ran["medicines/1"], 20)
	assert.Len(t, rec.ran["medicines/2"], 4)
	assert.Equal(t, uint64(24), monitor.Stats().Succeeded)
}

func TestShardOf_Stable(t *testing.T) {
	a := shardOf("medicines/42", 8)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a, shardOf("medicines/42", 8))
	}
	assert.Less(t, a, 8)
}
