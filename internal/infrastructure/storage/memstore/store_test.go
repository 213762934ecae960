package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AksahyDwivedi/pharmacy/internal/core/apperror"
	"github.com/AksahyDwivedi/pharmacy/internal/core/id"
	"github.com/AksahyDwivedi/pharmacy/internal/domain/pharmacy"
)

func ptr[T any](v T) *T { return &v }

func newBatchStore() *Store[*pharmacy.MedicineBatch] {
	return New("medicine-batches", func() *pharmacy.MedicineBatch { return new(pharmacy.MedicineBatch) })
}

func TestStore_InsertAssignsSequentialIDs(t *testing.T) {
	ctx := context.Background()
	s := newBatchStore()

	in := &pharmacy.MedicineBatch{BatchNumber: ptr("B-1")}
	first, err := s.Insert(ctx, in)
	require.NoError(t, err)
	second, err := s.Insert(ctx, &pharmacy.MedicineBatch{BatchNumber: ptr("B-2")})
	require.NoError(t, err)

	assert.Equal(t, id.ID(1), *first.ID)
	assert.Equal(t, id.ID(2), *second.ID)
	assert.Nil(t, in.ID, "input record must not be modified")

	_, err = s.Insert(ctx, first)
	assert.True(t, apperror.IsConflict(err))
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := newBatchStore()

	rec, err := s.Insert(ctx, &pharmacy.MedicineBatch{BatchNumber: ptr("B-1")})
	require.NoError(t, err)
	*rec.BatchNumber = "changed"

	got, found, err := s.FindByID(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "B-1", *got.BatchNumber)
}

func TestStore_SaveAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newBatchStore()

	rec, err := s.Insert(ctx, &pharmacy.MedicineBatch{BatchNumber: ptr("B-1"), Quantity: ptr(int32(5))})
	require.NoError(t, err)

	rec.Quantity = nil
	saved, err := s.Save(ctx, rec)
	require.NoError(t, err)
	assert.Nil(t, saved.Quantity)

	require.NoError(t, s.DeleteByID(ctx, 1))
	require.NoError(t, s.DeleteByID(ctx, 1))

	exists, err := s.ExistsByID(ctx, 1)
	require.NoError(t, err)
	assert.False(t, exists)

	_, found, err := s.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_SaveDoesNotResurrectDeletedRow(t *testing.T) {
	ctx := context.Background()
	s := newBatchStore()

	rec, err := s.Insert(ctx, &pharmacy.MedicineBatch{BatchNumber: ptr("B-1")})
	require.NoError(t, err)
	require.NoError(t, s.DeleteByID(ctx, *rec.ID))

	_, err = s.Save(ctx, rec)
	assert.True(t, apperror.IsNotFound(err))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_FindByReference(t *testing.T) {
	ctx := context.Background()
	s := newBatchStore()

	for _, purchase := range []id.ID{7, 8, 7} {
		_, err := s.Insert(ctx, &pharmacy.MedicineBatch{PurchaseID: ptr(purchase)})
		require.NoError(t, err)
	}
	_, err := s.Insert(ctx, &pharmacy.MedicineBatch{})
	require.NoError(t, err)

	got, err := s.FindBy(ctx, "purchaseId", 7)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, id.ID(1), *got[0].ID)
	assert.Equal(t, id.ID(3), *got[1].ID)

	_, err = s.FindBy(ctx, "batchNumber", 7)
	assert.Error(t, err)
}

func TestStore_FindPage(t *testing.T) {
	ctx := context.Background()
	s := newBatchStore()
	for i := 0; i < 5; i++ {
		_, err := s.Insert(ctx, &pharmacy.MedicineBatch{})
		require.NoError(t, err)
	}

	page, err := s.FindPage(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, id.ID(3), *page[0].ID)
	assert.Equal(t, id.ID(4), *page[1].ID)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestStore_FailWith(t *testing.T) {
	ctx := context.Background()
	s := newBatchStore()
	s.FailWith = errors.New("connection refused")

	_, err := s.Insert(ctx, &pharmacy.MedicineBatch{})
	assert.EqualError(t, err, "connection refused")
	_, _, err = s.FindByID(ctx, 1)
	assert.Error(t, err)
	assert.Error(t, s.DeleteByID(ctx, 1))
}
