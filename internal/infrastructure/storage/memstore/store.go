// Package memstore provides an in-memory primary store. It backs the
// STORE=memory mode used for local runs and the repository tests; records are
// copied on the way in and out so callers never share state with the store.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/AksahyDwivedi/pharmacy/internal/core/apperror"
	"github.com/AksahyDwivedi/pharmacy/internal/core/entity"
	"github.com/AksahyDwivedi/pharmacy/internal/core/id"
)

// Store is a map-backed primary store for one entity type.
type Store[T entity.Record] struct {
	mu     sync.RWMutex
	name   string
	rows   map[id.ID][]byte
	nextID id.ID
	newFn  func() T

	// FailWith, when set, is returned by every call. Tests use it to simulate
	// an unavailable database.
	FailWith error
}

// New creates an empty store. newFn must return a fresh zero record.
func New[T entity.Record](name string, newFn func() T) *Store[T] {
	return &Store[T]{
		name:  name,
		rows:  make(map[id.ID][]byte),
		newFn: newFn,
	}
}

// Insert assigns the next id and stores a copy of rec.
func (s *Store[T]) Insert(ctx context.Context, rec T) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return rec, s.FailWith
	}
	if entity.HasID(rec) {
		return rec, apperror.NewConflict("insert with pre-assigned id").
			WithDetail("entity", s.name).
			WithDetail("id", *rec.GetID())
	}

	s.nextID++
	stored, err := s.encode(rec, s.nextID)
	if err != nil {
		return rec, err
	}
	s.rows[s.nextID] = stored
	return s.decode(stored)
}

func (s *Store[T]) FindByID(ctx context.Context, entityID id.ID) (T, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var zero T
	if s.FailWith != nil {
		return zero, false, s.FailWith
	}
	data, ok := s.rows[entityID]
	if !ok {
		return zero, false, nil
	}
	rec, err := s.decode(data)
	return rec, err == nil, err
}

func (s *Store[T]) ExistsByID(ctx context.Context, entityID id.ID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailWith != nil {
		return false, s.FailWith
	}
	_, ok := s.rows[entityID]
	return ok, nil
}

// Save overwrites the stored row. A missing row is NotFound, like an UPDATE
// that matches nothing; a deleted row is never brought back.
func (s *Store[T]) Save(ctx context.Context, rec T) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return rec, s.FailWith
	}
	recID := rec.GetID()
	if recID == nil {
		return rec, fmt.Errorf("save %s: record has no id", s.name)
	}
	if _, ok := s.rows[*recID]; !ok {
		return rec, apperror.NewNotFound(s.name, *recID)
	}
	stored, err := s.encode(rec, *recID)
	if err != nil {
		return rec, err
	}
	s.rows[*recID] = stored
	return s.decode(stored)
}

func (s *Store[T]) DeleteByID(ctx context.Context, entityID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}
	delete(s.rows, entityID)
	return nil
}

func (s *Store[T]) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailWith != nil {
		return 0, s.FailWith
	}
	return int64(len(s.rows)), nil
}

func (s *Store[T]) FindAll(ctx context.Context) ([]T, error) {
	return s.FindPage(ctx, 0, 0)
}

// FindBy matches the reference field whose json name is field.
func (s *Store[T]) FindBy(ctx context.Context, field string, value id.ID) ([]T, error) {
	all, err := s.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	idx, ok := refFieldIndex(reflect.TypeOf(s.newFn()), field)
	if !ok {
		return nil, apperror.NewValidation("unknown reference field").
			WithDetail("entity", s.name).
			WithDetail("field", field)
	}

	var out []T
	for _, rec := range all {
		fv := reflect.ValueOf(rec).Elem().FieldByIndex(idx)
		if fv.IsNil() {
			continue
		}
		if fv.Elem().Int() == value {
			out = append(out, rec)
		}
	}
	return out, nil
}

// FindPage returns records with id > afterID in id order. limit <= 0 means all.
func (s *Store[T]) FindPage(ctx context.Context, afterID id.ID, limit int) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}

	ids := make([]id.ID, 0, len(s.rows))
	for k := range s.rows {
		if k > afterID {
			ids = append(ids, k)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]T, 0, len(ids))
	for _, k := range ids {
		rec, err := s.decode(s.rows[k])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store[T]) encode(rec T, assigned id.ID) ([]byte, error) {
	cp, err := s.decodeInto(rec)
	if err != nil {
		return nil, err
	}
	cp.SetID(assigned)
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", s.name, err)
	}
	return data, nil
}

func (s *Store[T]) decodeInto(rec T) (T, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return rec, fmt.Errorf("encode %s: %w", s.name, err)
	}
	return s.decode(data)
}

func (s *Store[T]) decode(data []byte) (T, error) {
	rec := s.newFn()
	if err := json.Unmarshal(data, rec); err != nil {
		return rec, fmt.Errorf("decode %s: %w", s.name, err)
	}
	return rec, nil
}

func refFieldIndex(t reflect.Type, jsonName string) ([]int, bool) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Tag.Get("ref") == "" {
			continue
		}
		name := strings.Split(f.Tag.Get("json"), ",")[0]
		if name == jsonName && f.Type.Kind() == reflect.Ptr && f.Type.Elem().Kind() == reflect.Int64 {
			return f.Index, true
		}
	}
	return nil, false
}
