// Package record_repo provides the PostgreSQL primary store shared by every
// entity record. One Repo serves one table; columns come from the entity's
// metadata definition.
package record_repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/AksahyDwivedi/pharmacy/internal/core/apperror"
	"github.com/AksahyDwivedi/pharmacy/internal/core/entity"
	"github.com/AksahyDwivedi/pharmacy/internal/core/id"
	"github.com/AksahyDwivedi/pharmacy/internal/domain"
	"github.com/AksahyDwivedi/pharmacy/internal/infrastructure/storage/postgres"
	"github.com/AksahyDwivedi/pharmacy/internal/metadata"
)

// PostgreSQL error codes mapped to application errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Repo is the primary store of one entity type.
type Repo[T entity.Record] struct {
	def        metadata.EntityDef
	tableName  string
	selectCols []string
	writeCols  []string
	mapper     *postgres.RowMapper
	txManager  *postgres.TxManager
	newFn      func() T
}

var _ domain.PrimaryStore[entity.Record] = (*Repo[entity.Record])(nil)

// New creates a repository for def.TableName. It panics when a column of
// def has no field in T.
func New[T entity.Record](def metadata.EntityDef, txManager *postgres.TxManager, newFn func() T) *Repo[T] {
	mapper := postgres.RowMapperOf[T]()
	if missing := mapper.Missing(def.Columns()); len(missing) > 0 {
		panic(fmt.Sprintf("record_repo: %s has no field for columns %v", def.Name, missing))
	}

	var writeCols []string
	for _, col := range def.Columns() {
		if col != "id" {
			writeCols = append(writeCols, col)
		}
	}
	return &Repo[T]{
		def:        def,
		tableName:  def.TableName,
		selectCols: def.Columns(),
		writeCols:  writeCols,
		mapper:     mapper,
		txManager:  txManager,
		newFn:      newFn,
	}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *Repo[T]) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *Repo[T]) querier(ctx context.Context) postgres.Querier {
	return r.txManager.GetQuerier(ctx)
}

// Insert stores rec and returns the stored row with its assigned id.
func (r *Repo[T]) Insert(ctx context.Context, rec T) (T, error) {
	if entity.HasID(rec) {
		return rec, apperror.NewConflict("Record already has an id").
			WithDetail("entity", r.def.Name).
			WithDetail("id", *rec.GetID())
	}

	sql, args, err := r.insertQuery(rec).ToSql()
	if err != nil {
		return rec, fmt.Errorf("build insert: %w", err)
	}

	inserted := r.newFn()
	if err := pgxscan.Get(ctx, r.querier(ctx), inserted, sql, args...); err != nil {
		return rec, r.mapWriteError("insert", err)
	}
	return inserted, nil
}

func (r *Repo[T]) insertQuery(rec T) squirrel.InsertBuilder {
	return r.Builder().
		Insert(r.tableName).
		SetMap(r.columnValues(rec)).
		Suffix("RETURNING " + strings.Join(r.selectCols, ", "))
}

// FindByID loads a row. A missing row is reported through found.
func (r *Repo[T]) FindByID(ctx context.Context, entityID id.ID) (T, bool, error) {
	rec := r.newFn()

	sql, args, err := r.baseSelect().
		Where(squirrel.Eq{"id": entityID}).
		Limit(1).
		ToSql()
	if err != nil {
		return rec, false, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Get(ctx, r.querier(ctx), rec, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return rec, false, nil
		}
		return rec, false, fmt.Errorf("get %s by id: %w", r.tableName, err)
	}
	return rec, true, nil
}

// ExistsByID checks if the row exists.
func (r *Repo[T]) ExistsByID(ctx context.Context, entityID id.ID) (bool, error) {
	sql, args, err := r.Builder().
		Select("1").
		From(r.tableName).
		Where(squirrel.Eq{"id": entityID}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var exists int
	err = r.querier(ctx).QueryRow(ctx, sql, args...).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", r.tableName, err)
	}
	return true, nil
}

// Save overwrites every column but id. Nil attributes are written as NULL.
func (r *Repo[T]) Save(ctx context.Context, rec T) (T, error) {
	if !entity.HasID(rec) {
		return rec, apperror.NewInvalidRequest(r.def.Name, apperror.KeyIDNull)
	}

	sql, args, err := r.saveQuery(rec).ToSql()
	if err != nil {
		return rec, fmt.Errorf("build update: %w", err)
	}

	saved := r.newFn()
	if err := pgxscan.Get(ctx, r.querier(ctx), saved, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return rec, apperror.NewNotFound(r.def.Name, *rec.GetID())
		}
		return rec, r.mapWriteError("update", err)
	}
	return saved, nil
}

func (r *Repo[T]) saveQuery(rec T) squirrel.UpdateBuilder {
	return r.Builder().
		Update(r.tableName).
		SetMap(r.columnValues(rec)).
		Where(squirrel.Eq{"id": *rec.GetID()}).
		Suffix("RETURNING " + strings.Join(r.selectCols, ", "))
}

// DeleteByID removes the row. Deleting a missing row succeeds.
func (r *Repo[T]) DeleteByID(ctx context.Context, entityID id.ID) error {
	sql, args, err := r.Builder().
		Delete(r.tableName).
		Where(squirrel.Eq{"id": entityID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return apperror.NewConflict("Record is referenced by other records").
				WithDetail("entity", r.def.Name).
				WithDetail("id", entityID).
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		}
		return fmt.Errorf("execute delete %s: %w", r.tableName, err)
	}
	return nil
}

// Count returns the number of rows.
func (r *Repo[T]) Count(ctx context.Context) (int64, error) {
	sql, args, err := r.Builder().Select("COUNT(*)").From(r.tableName).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	var n int64
	if err := r.querier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", r.tableName, err)
	}
	return n, nil
}

// FindAll returns every row ordered by id.
func (r *Repo[T]) FindAll(ctx context.Context) ([]T, error) {
	return r.selectMany(ctx, r.baseSelect().OrderBy("id ASC"))
}

// FindBy returns the rows whose reference field holds value, ordered by id.
// field is the json name of a reference field.
func (r *Repo[T]) FindBy(ctx context.Context, field string, value id.ID) ([]T, error) {
	q, err := r.findByQuery(field, value)
	if err != nil {
		return nil, err
	}
	return r.selectMany(ctx, q)
}

func (r *Repo[T]) findByQuery(field string, value id.ID) (squirrel.SelectBuilder, error) {
	f, ok := r.def.Field(field)
	if !ok || f.Type != metadata.TypeReference {
		return squirrel.SelectBuilder{}, apperror.NewValidation("invalid lookup field").
			WithDetail("entity", r.def.Name).
			WithDetail("field", field)
	}
	return r.baseSelect().
		Where(squirrel.Eq{f.Column: value}).
		OrderBy("id ASC"), nil
}

// FindPage returns up to limit rows with id greater than afterID.
func (r *Repo[T]) FindPage(ctx context.Context, afterID id.ID, limit int) ([]T, error) {
	return r.selectMany(ctx, r.pageQuery(afterID, limit))
}

func (r *Repo[T]) pageQuery(afterID id.ID, limit int) squirrel.SelectBuilder {
	return r.baseSelect().
		Where(squirrel.Gt{"id": afterID}).
		OrderBy("id ASC").
		Limit(uint64(limit))
}

func (r *Repo[T]) baseSelect() squirrel.SelectBuilder {
	return r.Builder().
		Select(r.selectCols...).
		From(r.tableName)
}

func (r *Repo[T]) selectMany(ctx context.Context, q squirrel.SelectBuilder) ([]T, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	items := make([]T, 0)
	if err := pgxscan.Select(ctx, r.querier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", r.tableName, err)
	}
	return items, nil
}

// columnValues returns the writable columns of rec: every column but id.
func (r *Repo[T]) columnValues(rec T) map[string]any {
	return r.mapper.Values(rec, r.writeCols)
}

func (r *Repo[T]) mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return apperror.NewConflict("Record violates a unique constraint").
				WithDetail("entity", r.def.Name).
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		case pgForeignKeyViolation:
			return apperror.NewValidation("Referenced record does not exist").
				WithDetail("entity", r.def.Name).
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		}
	}
	return fmt.Errorf("%s %s: %w", op, r.tableName, err)
}
