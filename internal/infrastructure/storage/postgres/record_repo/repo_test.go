package record_repo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AksahyDwivedi/pharmacy/internal/core/apperror"
	"github.com/AksahyDwivedi/pharmacy/internal/core/id"
	"github.com/AksahyDwivedi/pharmacy/internal/domain/pharmacy"
	"github.com/AksahyDwivedi/pharmacy/internal/metadata"
)

func medicineRepo() *Repo[*pharmacy.Medicine] {
	def := metadata.Inspect(&pharmacy.Medicine{}, "medicines", "medicines", "medicines")
	return New(def, nil, func() *pharmacy.Medicine { return &pharmacy.Medicine{} })
}

func batchRepo() *Repo[*pharmacy.MedicineBatch] {
	def := metadata.Inspect(&pharmacy.MedicineBatch{}, "medicine-batches", "medicine-batches", "medicine_batches")
	return New(def, nil, func() *pharmacy.MedicineBatch { return &pharmacy.MedicineBatch{} })
}

func TestRepo_InsertSQL(t *testing.T) {
	repo := medicineRepo()
	name := "Paracetamol"
	price := decimal.RequireFromString("12.50")

	sql, args, err := repo.insertQuery(&pharmacy.Medicine{Name: &name, Price: &price}).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "INSERT INTO medicines (category,manufacturer,name,price,stock)")
	assert.Contains(t, sql, "$5")
	assert.NotContains(t, sql, "$6")
	assert.Contains(t, sql, "RETURNING id, name, manufacturer, category, price, stock")
	require.Len(t, args, 5)
	assert.Equal(t, &name, args[2])
	assert.Equal(t, &price, args[3])
}

func TestRepo_SaveSQL_WritesNullForAbsent(t *testing.T) {
	repo := medicineRepo()
	name := "Paracetamol"
	rec := &pharmacy.Medicine{Name: &name}
	rec.SetID(7)

	sql, args, err := repo.saveQuery(rec).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "UPDATE medicines SET category = $1, manufacturer = $2, name = $3, price = $4, stock = $5")
	assert.Contains(t, sql, "WHERE id = $6")
	assert.Contains(t, sql, "RETURNING id,")
	require.Len(t, args, 6)
	assert.Nil(t, args[0])
	assert.Nil(t, args[1])
	assert.Equal(t, id.ID(7), args[5])
}

func TestRepo_PageSQL(t *testing.T) {
	sql, args, err := medicineRepo().pageQuery(40, 100).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id, name, manufacturer, category, price, stock FROM medicines WHERE id > $1 ORDER BY id ASC LIMIT 100",
		sql)
	assert.Equal(t, []any{id.ID(40)}, args)
}

func TestRepo_FindBySQL(t *testing.T) {
	q, err := batchRepo().findByQuery("purchaseId", 3)
	require.NoError(t, err)

	sql, args, err := q.ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id, batch_number, expiry_date, quantity, purchase_id, medicine_id FROM medicine_batches WHERE purchase_id = $1 ORDER BY id ASC",
		sql)
	assert.Equal(t, []any{id.ID(3)}, args)
}

func TestRepo_FindBy_RejectsNonReferenceFields(t *testing.T) {
	repo := batchRepo()

	for _, field := range []string{"batchNumber", "batch_number", "id", "nope"} {
		_, err := repo.findByQuery(field, 1)
		require.Error(t, err, field)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeValidation, appErr.Code)
	}
}

func TestRepo_DeleteSQL(t *testing.T) {
	repo := medicineRepo()

	sql, args, err := repo.Builder().
		Delete(repo.tableName).
		Where("id = ?", id.ID(9)).
		ToSql()
	require.NoError(t, err)

	assert.Equal(t, "DELETE FROM medicines WHERE id = $1", sql)
	assert.Equal(t, []any{id.ID(9)}, args)
}

func TestRepo_MapWriteError(t *testing.T) {
	repo := medicineRepo()

	unique := fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505", ConstraintName: "medicines_name_key"})
	err := repo.mapWriteError("insert", unique)
	assert.True(t, apperror.IsConflict(err))
	assert.Equal(t, 409, apperror.GetHTTPStatus(err))

	fk := &pgconn.PgError{Code: "23503", ConstraintName: "medicine_batches_purchase_id_fkey"}
	err = repo.mapWriteError("insert", fk)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)

	plain := errors.New("connection reset")
	err = repo.mapWriteError("update", plain)
	assert.ErrorIs(t, err, plain)
	_, ok = apperror.AsAppError(err)
	assert.False(t, ok)
}

func TestRepo_ColumnValuesSkipID(t *testing.T) {
	rec := &pharmacy.Medicine{}
	rec.SetID(1)

	values := medicineRepo().columnValues(rec)
	assert.NotContains(t, values, "id")
	assert.Len(t, values, 5)
}

func TestNew_PanicsOnUnmappedColumns(t *testing.T) {
	def := metadata.Inspect(&pharmacy.Medicine{}, "medicines", "medicines", "medicines")

	assert.Panics(t, func() {
		New(def, nil, func() *pharmacy.Customer { return &pharmacy.Customer{} })
	})
}
