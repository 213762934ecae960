package domain

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AksahyDwivedi/pharmacy/internal/core/apperror"
	"github.com/AksahyDwivedi/pharmacy/internal/core/id"
	"github.com/AksahyDwivedi/pharmacy/internal/domain/pharmacy"
	"github.com/AksahyDwivedi/pharmacy/internal/infrastructure/storage/memstore"
)

// fakeIndex keeps documents in a map. When failing is set every call errors.
type fakeIndex struct {
	mu      sync.Mutex
	docs    map[id.ID]*pharmacy.Medicine
	failing error
	results []*pharmacy.Medicine
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: make(map[id.ID]*pharmacy.Medicine)}
}

func (f *fakeIndex) Index(ctx context.Context, rec *pharmacy.Medicine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing != nil {
		return f.failing
	}
	f.docs[*rec.ID] = rec
	return nil
}

func (f *fakeIndex) IndexBatch(ctx context.Context, recs []*pharmacy.Medicine) error {
	for _, rec := range recs {
		if err := f.Index(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeIndex) DeleteByID(ctx context.Context, entityID id.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing != nil {
		return f.failing
	}
	delete(f.docs, entityID)
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, query string) (iter.Seq2[*pharmacy.Medicine, error], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing != nil {
		return nil, f.failing
	}
	results := f.results
	return func(yield func(*pharmacy.Medicine, error) bool) {
		for _, r := range results {
			if !yield(r, nil) {
				return
			}
		}
	}, nil
}

func (f *fakeIndex) FindAll(ctx context.Context) (iter.Seq2[*pharmacy.Medicine, error], error) {
	return f.Search(ctx, "*")
}

func (f *fakeIndex) IDs(ctx context.Context) (iter.Seq2[id.ID, error], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]id.ID, 0, len(f.docs))
	for k := range f.docs {
		ids = append(ids, k)
	}
	return func(yield func(id.ID, error) bool) {
		for _, k := range ids {
			if !yield(k, nil) {
				return
			}
		}
	}, nil
}

func (f *fakeIndex) Count(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.docs)), nil
}

func (f *fakeIndex) doc(entityID id.ID) (*pharmacy.Medicine, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[entityID]
	return d, ok
}

// syncMirror runs tasks inline and keeps their errors.
type syncMirror struct {
	mu     sync.Mutex
	tasks  []MirrorTask
	errors []error
}

func (m *syncMirror) Submit(ctx context.Context, task MirrorTask) {
	err := task.Run(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
	if err != nil {
		m.errors = append(m.errors, err)
	}
}

type fixture struct {
	repo   *IndexedRepository[*pharmacy.Medicine]
	store  *memstore.Store[*pharmacy.Medicine]
	index  *fakeIndex
	mirror *syncMirror
}

func newFixture() fixture {
	store := memstore.New("medicines", func() *pharmacy.Medicine { return &pharmacy.Medicine{} })
	index := newFakeIndex()
	mirror := &syncMirror{}
	repo := NewIndexedRepository(IndexedRepositoryConfig[*pharmacy.Medicine]{
		EntityName: "medicines",
		Store:      store,
		Index:      index,
		Mirror:     mirror,
	})
	return fixture{repo: repo, store: store, index: index, mirror: mirror}
}

func ptr[T any](v T) *T { return &v }

func paracetamol() *pharmacy.Medicine {
	return &pharmacy.Medicine{
		Name:         ptr("Paracetamol"),
		Manufacturer: ptr("AAAAAAAAAA"),
		Price:        ptr(decimal.RequireFromString("4.20")),
		Stock:        ptr(int32(100)),
	}
}

func TestCreate_RejectsPreassignedID(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	rec := paracetamol()
	rec.SetID(42)

	_, err := f.repo.Create(ctx, rec)

	require.Error(t, err)
	assert.True(t, apperror.IsInvalidRequest(err))
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, apperror.KeyIDExists, appErr.Key())

	count, _ := f.store.Count(ctx)
	assert.Zero(t, count)
	assert.Empty(t, f.mirror.tasks)
}

func TestCreate_AssignsIDAndMirrors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	created, err := f.repo.Create(ctx, paracetamol())
	require.NoError(t, err)
	require.NotNil(t, created.ID)

	got, err := f.repo.GetByID(ctx, *created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Equal(t, "Paracetamol", *got.Name)
	assert.Equal(t, int32(100), *got.Stock)

	doc, ok := f.index.doc(*created.ID)
	require.True(t, ok)
	assert.Equal(t, *created.Name, *doc.Name)

	require.Len(t, f.mirror.tasks, 1)
	assert.Equal(t, MirrorIndex, f.mirror.tasks[0].Op)
	assert.Equal(t, "medicines/1", f.mirror.tasks[0].Key())
}

func TestUpdate_IdentityChecks(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	created, err := f.repo.Create(ctx, paracetamol())
	require.NoError(t, err)

	noID := paracetamol()
	_, err = f.repo.Update(ctx, *created.ID, noID)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KeyIDNull, appErr.Key())

	mismatched := paracetamol()
	mismatched.SetID(*created.ID + 1)
	_, err = f.repo.Update(ctx, *created.ID, mismatched)
	appErr, ok = apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KeyIDInvalid, appErr.Key())

	missing := paracetamol()
	missing.SetID(999)
	_, err = f.repo.Update(ctx, 999, missing)
	assert.True(t, apperror.IsNotFound(err))
	appErr, _ = apperror.AsAppError(err)
	assert.Equal(t, apperror.KeyIDNotFound, appErr.Key())
}

func TestUpdate_FullOverwrite(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	created, err := f.repo.Create(ctx, paracetamol())
	require.NoError(t, err)

	replacement := &pharmacy.Medicine{Name: ptr("BBBBBBBBBB")}
	replacement.SetID(*created.ID)

	saved, err := f.repo.Update(ctx, *created.ID, replacement)
	require.NoError(t, err)
	assert.Equal(t, "BBBBBBBBBB", *saved.Name)

	got, err := f.repo.GetByID(ctx, *created.ID)
	require.NoError(t, err)
	assert.Equal(t, "BBBBBBBBBB", *got.Name)
	assert.Nil(t, got.Manufacturer)
	assert.Nil(t, got.Price)
	assert.Nil(t, got.Stock)

	doc, ok := f.index.doc(*created.ID)
	require.True(t, ok)
	assert.Nil(t, doc.Stock)
}

func TestPartialUpdate_MergesSetFields(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	created, err := f.repo.Create(ctx, paracetamol())
	require.NoError(t, err)

	patch := &pharmacy.Medicine{Stock: ptr(int32(7)), Category: ptr("analgesic")}
	patch.SetID(*created.ID)

	merged, err := f.repo.PartialUpdate(ctx, *created.ID, patch)
	require.NoError(t, err)

	assert.Equal(t, int32(7), *merged.Stock)
	assert.Equal(t, "analgesic", *merged.Category)
	assert.Equal(t, "Paracetamol", *merged.Name)
	assert.Equal(t, "AAAAAAAAAA", *merged.Manufacturer)
	assert.True(t, decimal.RequireFromString("4.20").Equal(*merged.Price))

	got, err := f.repo.GetByID(ctx, *created.ID)
	require.NoError(t, err)
	assert.Equal(t, merged, got)

	doc, _ := f.index.doc(*created.ID)
	assert.Equal(t, int32(7), *doc.Stock)
}

func TestPartialUpdate_IdentityChecks(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.repo.PartialUpdate(ctx, 1, &pharmacy.Medicine{Stock: ptr(int32(1))})
	assert.True(t, apperror.IsInvalidRequest(err))

	patch := &pharmacy.Medicine{}
	patch.SetID(5)
	_, err = f.repo.PartialUpdate(ctx, 5, patch)
	assert.True(t, apperror.IsNotFound(err))
}

func TestDelete_IdempotentAndMirrored(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	created, err := f.repo.Create(ctx, paracetamol())
	require.NoError(t, err)

	require.NoError(t, f.repo.Delete(ctx, *created.ID))
	require.NoError(t, f.repo.Delete(ctx, *created.ID))

	_, err = f.repo.GetByID(ctx, *created.ID)
	assert.True(t, apperror.IsNotFound(err))

	_, ok := f.index.doc(*created.ID)
	assert.False(t, ok)
	assert.Empty(t, f.mirror.errors)
}

func TestIndexFailure_DoesNotBlockWrites(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.index.failing = apperror.NewSearchUnavailable("medicines", errors.New("connection refused"))

	created, err := f.repo.Create(ctx, paracetamol())
	require.NoError(t, err)

	replacement := paracetamol()
	replacement.SetID(*created.ID)
	replacement.Stock = ptr(int32(1))
	_, err = f.repo.Update(ctx, *created.ID, replacement)
	require.NoError(t, err)

	got, err := f.repo.GetByID(ctx, *created.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), *got.Stock)

	require.NoError(t, f.repo.Delete(ctx, *created.ID))
	count, _ := f.store.Count(ctx)
	assert.Zero(t, count)

	assert.Len(t, f.mirror.errors, 3)

	_, err = f.repo.Search(ctx, "name:Paracetamol")
	assert.True(t, apperror.IsSearchUnavailable(err))
}

func TestSearch_WrapsPlainErrors(t *testing.T) {
	f := newFixture()
	f.index.failing = errors.New("timeout")

	_, err := f.repo.Search(context.Background(), "name:x")

	require.Error(t, err)
	assert.True(t, apperror.IsSearchUnavailable(err))
}

func TestSearch_PassesResultsThrough(t *testing.T) {
	f := newFixture()
	hit := paracetamol()
	hit.SetID(3)
	f.index.results = []*pharmacy.Medicine{hit}

	seq, err := f.repo.Search(context.Background(), "name:Paracetamol")
	require.NoError(t, err)

	var got []*pharmacy.Medicine
	for rec, err := range seq {
		require.NoError(t, err)
		got = append(got, rec)
	}
	assert.Equal(t, []*pharmacy.Medicine{hit}, got)
}

func TestCreate_PrimaryFailurePropagates(t *testing.T) {
	f := newFixture()
	f.store.FailWith = errors.New("db down")

	_, err := f.repo.Create(context.Background(), paracetamol())

	assert.ErrorContains(t, err, "db down")
	assert.Empty(t, f.mirror.tasks)
}

func TestRefresh_ConvergesOnPrimary(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.index.failing = errors.New("down")
	created, err := f.repo.Create(ctx, paracetamol())
	require.NoError(t, err)
	f.index.failing = nil

	_, ok := f.index.doc(*created.ID)
	require.False(t, ok)

	require.NoError(t, f.repo.Refresh(ctx, *created.ID))
	_, ok = f.index.doc(*created.ID)
	assert.True(t, ok)

	require.NoError(t, f.store.DeleteByID(ctx, *created.ID))
	require.NoError(t, f.repo.Refresh(ctx, *created.ID))
	_, ok = f.index.doc(*created.ID)
	assert.False(t, ok)
}

func TestReindex_RebuildsAndDropsOrphans(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.index.failing = errors.New("down")
	for i := 0; i < 5; i++ {
		_, err := f.repo.Create(ctx, paracetamol())
		require.NoError(t, err)
	}
	f.index.failing = nil

	orphan := paracetamol()
	orphan.SetID(100)
	require.NoError(t, f.index.Index(ctx, orphan))

	stats, err := f.repo.Reindex(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, ReindexStats{Entity: "medicines", Indexed: 5, Orphans: 1}, stats)
	count, _ := f.index.Count(ctx)
	assert.Equal(t, uint64(5), count)
	_, ok := f.index.doc(100)
	assert.False(t, ok)
}

// racingIndex lets a writer run at a chosen point of a rebuild.
type racingIndex struct {
	*fakeIndex
	beforeBatch func()
	beforeIDs   func()
}

func (r *racingIndex) IndexBatch(ctx context.Context, recs []*pharmacy.Medicine) error {
	if r.beforeBatch != nil {
		hook := r.beforeBatch
		r.beforeBatch = nil
		hook()
	}
	return r.fakeIndex.IndexBatch(ctx, recs)
}

func (r *racingIndex) IDs(ctx context.Context) (iter.Seq2[id.ID, error], error) {
	if r.beforeIDs != nil {
		hook := r.beforeIDs
		r.beforeIDs = nil
		hook()
	}
	return r.fakeIndex.IDs(ctx)
}

func newRacingFixture() (fixture, *racingIndex) {
	f := newFixture()
	racing := &racingIndex{fakeIndex: f.index}
	f.repo = NewIndexedRepository(IndexedRepositoryConfig[*pharmacy.Medicine]{
		EntityName: "medicines",
		Store:      f.store,
		Index:      racing,
		Mirror:     f.mirror,
	})
	return f, racing
}

func TestReindex_KeepsRowCommittedDuringRebuild(t *testing.T) {
	f, racing := newRacingFixture()
	ctx := context.Background()

	_, err := f.repo.Create(ctx, paracetamol())
	require.NoError(t, err)

	var late *pharmacy.Medicine
	racing.beforeIDs = func() {
		late, err = f.repo.Create(ctx, paracetamol())
		require.NoError(t, err)
	}

	stats, err := f.repo.Reindex(ctx, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 0, stats.Orphans)
	assert.Equal(t, 1, stats.Resynced)
	_, ok := f.index.doc(*late.ID)
	assert.True(t, ok)
}

func TestReindex_DoesNotLeaveOlderSnapshot(t *testing.T) {
	f, racing := newRacingFixture()
	ctx := context.Background()

	created, err := f.repo.Create(ctx, paracetamol())
	require.NoError(t, err)

	// The update is mirrored after the page was read but before it is
	// written, so the batch carries the older stock.
	racing.beforeBatch = func() {
		patch := &pharmacy.Medicine{Stock: ptr(int32(3))}
		patch.SetID(*created.ID)
		_, err := f.repo.PartialUpdate(ctx, *created.ID, patch)
		require.NoError(t, err)
	}

	stats, err := f.repo.Reindex(ctx, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Resynced)
	doc, ok := f.index.doc(*created.ID)
	require.True(t, ok)
	assert.Equal(t, int32(3), *doc.Stock)
}

func TestReindex_DeletedDuringRebuildIsOrphan(t *testing.T) {
	f, racing := newRacingFixture()
	ctx := context.Background()

	kept, err := f.repo.Create(ctx, paracetamol())
	require.NoError(t, err)
	gone, err := f.repo.Create(ctx, paracetamol())
	require.NoError(t, err)

	racing.beforeBatch = func() {
		require.NoError(t, f.store.DeleteByID(ctx, *gone.ID))
	}

	_, err = f.repo.Reindex(ctx, 10)
	require.NoError(t, err)

	_, ok := f.index.doc(*kept.ID)
	assert.True(t, ok)
	_, ok = f.index.doc(*gone.ID)
	assert.False(t, ok)
}

// deferringTx keeps AfterCommit hooks until fn returns, like a real
// transaction manager, and drops them when fn fails.
type deferringTx struct {
	mu      sync.Mutex
	depth   int
	pending []func()
}

func (d *deferringTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	d.mu.Lock()
	d.depth++
	d.mu.Unlock()

	err := fn(ctx)

	d.mu.Lock()
	d.depth--
	if d.depth > 0 {
		d.mu.Unlock()
		return err
	}
	hooks := d.pending
	d.pending = nil
	d.mu.Unlock()
	if err != nil {
		return err
	}
	for _, hook := range hooks {
		hook()
	}
	return nil
}

func (d *deferringTx) AfterCommit(_ context.Context, fn func()) {
	d.mu.Lock()
	if d.depth > 0 {
		d.pending = append(d.pending, fn)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	fn()
}

func TestMirror_SubmittedAfterCommitOnly(t *testing.T) {
	f := newFixture()
	txm := &deferringTx{}
	f.repo.txManager = txm
	ctx := context.Background()

	created, err := f.repo.Create(ctx, paracetamol())
	require.NoError(t, err)
	require.Len(t, f.mirror.tasks, 1)

	patch := &pharmacy.Medicine{Stock: ptr(int32(7))}
	patch.SetID(*created.ID)

	// An outer transaction that fails after the update must not mirror it.
	boom := errors.New("outer failure")
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := f.repo.PartialUpdate(ctx, *created.ID, patch); err != nil {
			return err
		}
		assert.Len(t, f.mirror.tasks, 1, "mirror must wait for the commit")
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Len(t, f.mirror.tasks, 1)

	_, err = f.repo.PartialUpdate(ctx, *created.ID, patch)
	require.NoError(t, err)
	require.Len(t, f.mirror.tasks, 2)
	doc, ok := f.index.doc(*created.ID)
	require.True(t, ok)
	assert.Equal(t, int32(7), *doc.Stock)
}
