package indexing

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/AksahyDwivedi/pharmacy/internal/core/id"
	"github.com/AksahyDwivedi/pharmacy/internal/domain"
	"github.com/AksahyDwivedi/pharmacy/pkg/logger"
)

const journalPrefix = "mirror/"

// Entry is a mirror task that failed and still needs a repair.
type Entry struct {
	Entity   string          `json:"entity"`
	ID       id.ID           `json:"id"`
	Op       domain.MirrorOp `json:"op"`
	Error    string          `json:"error"`
	Attempts int             `json:"attempts"`
	FailedAt time.Time       `json:"failedAt"`
}

// Key returns the document key, "entity/id".
func (e Entry) Key() string {
	return e.Entity + "/" + id.String(e.ID)
}

// Journal is the durable set of documents whose mirror failed. One entry
// per document: recording the same key again bumps Attempts.
type Journal struct {
	db *badger.DB
}

// OpenJournal opens the journal stored in dir. An empty dir keeps the
// journal in memory.
func OpenJournal(dir string, log *logger.Logger) (*Journal, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	if log == nil {
		log = logger.Nop()
	}
	opts.Logger = &badgerLogger{log: log.WithComponent("journal")}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record stores a failed task.
func (j *Journal) Record(task domain.MirrorTask, cause error) error {
	key := []byte(journalPrefix + task.Key())

	return j.db.Update(func(txn *badger.Txn) error {
		entry := Entry{Entity: task.Entity, ID: task.ID}

		item, err := txn.Get(key)
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}
		case err != badger.ErrKeyNotFound:
			return err
		}

		entry.Op = task.Op
		entry.Attempts++
		entry.FailedAt = time.Now().UTC()
		if cause != nil {
			entry.Error = cause.Error()
		}

		val, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return txn.Set(key, val)
	})
}

// Pending lists the recorded entries ordered by key.
func (j *Journal) Pending() ([]Entry, error) {
	var entries []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(journalPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

// Len returns the number of pending entries.
func (j *Journal) Len() (int, error) {
	n := 0
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(journalPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Resolve removes the entry of entity/entityID. Missing entries are ignored.
func (j *Journal) Resolve(entity string, entityID id.ID) error {
	key := []byte(journalPrefix + entity + "/" + id.String(entityID))
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// ResolveEntry removes e only if the stored entry is still the one read by
// Pending. A failure recorded for the same key since then bumps Attempts
// and FailedAt and is kept. It reports whether the entry was removed.
func (j *Journal) ResolveEntry(e Entry) (bool, error) {
	key := []byte(journalPrefix + e.Key())
	resolved := false
	err := j.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var stored Entry
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		}); err != nil {
			return err
		}
		if stored.Attempts != e.Attempts || !stored.FailedAt.Equal(e.FailedAt) {
			return nil
		}
		resolved = true
		return txn.Delete(key)
	})
	if err != nil {
		return false, err
	}
	return resolved, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// badgerLogger routes badger's printf-style logging to zap.
type badgerLogger struct {
	log *logger.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (b *badgerLogger) Errorf(msg string, args ...any) {
	b.log.Errorf(strings.TrimSpace(msg), args...)
}

func (b *badgerLogger) Warningf(msg string, args ...any) {
	b.log.Warnf(strings.TrimSpace(msg), args...)
}

func (b *badgerLogger) Infof(msg string, args ...any) {
	b.log.Debugf(strings.TrimSpace(msg), args...)
}

func (b *badgerLogger) Debugf(msg string, args ...any) {
	b.log.Debugf(strings.TrimSpace(msg), args...)
}
