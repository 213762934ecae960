package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/AksahyDwivedi/pharmacy/internal/config"
	"github.com/AksahyDwivedi/pharmacy/internal/domain"
	"github.com/AksahyDwivedi/pharmacy/internal/infrastructure/indexing"
	"github.com/AksahyDwivedi/pharmacy/internal/infrastructure/search/bleveindex"
	"github.com/AksahyDwivedi/pharmacy/internal/infrastructure/storage/postgres"
	"github.com/AksahyDwivedi/pharmacy/pkg/logger"
)

// Infra is the infrastructure shared by the server and the reindex tool.
type Infra struct {
	Pool      *postgres.Pool // nil in memory mode
	TxManager *postgres.TxManager
	Indexes   *bleveindex.Provider
	Journal   *indexing.Journal
	Monitor   *indexing.Monitor
}

// Open connects the primary store, applies migrations when enabled and opens
// the search indexes and the failure journal. Close releases what Open
// acquired, also after a partial failure.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (infra *Infra, err error) {
	infra = &Infra{}
	defer func() {
		if err != nil {
			_ = infra.Close()
			infra = nil
		}
	}()

	if cfg.DB.Store == config.StorePostgres {
		if cfg.DB.Migrate {
			if err := postgres.Migrate(cfg.DB.URL, log.WithComponent("migrate")); err != nil {
				return infra, err
			}
		}

		infra.Pool, err = postgres.NewPool(ctx, cfg.DB.URL, postgres.WithMaxConns(cfg.DB.MaxConns))
		if err != nil {
			return infra, fmt.Errorf("connect database: %w", err)
		}
		infra.TxManager = postgres.NewTxManager(infra.Pool)
		log.Infow("database connection established", "max_conns", infra.Pool.Config().MaxConns)
	} else {
		log.Warn("primary store runs in memory, data is lost on exit")
	}

	infra.Indexes, err = bleveindex.NewProvider(cfg.Search.IndexDir)
	if err != nil {
		return infra, fmt.Errorf("open search indexes: %w", err)
	}

	infra.Journal, err = indexing.OpenJournal(cfg.Mirror.JournalDir, log)
	if err != nil {
		return infra, fmt.Errorf("open mirror journal: %w", err)
	}
	infra.Monitor = indexing.NewMonitor(infra.Journal, log)
	return infra, nil
}

// Close closes the journal, the indexes and the pool.
func (i *Infra) Close() error {
	var errs []error
	if i.Journal != nil {
		errs = append(errs, i.Journal.Close())
	}
	if i.Indexes != nil {
		errs = append(errs, i.Indexes.Close())
	}
	if i.Pool != nil {
		i.Pool.Close()
	}
	return errors.Join(errs...)
}

// Deps returns the module dependencies using mirror for index writes.
func (i *Infra) Deps(mirror domain.Mirror) Deps {
	return Deps{
		TxManager: i.TxManager,
		Indexes:   i.Indexes,
		Mirror:    mirror,
	}
}
