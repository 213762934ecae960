package bleveindex

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/AksahyDwivedi/pharmacy/internal/metadata"
	"github.com/AksahyDwivedi/pharmacy/pkg/logger"
)

// Provider owns the bleve indexes of all entities. With an empty dir every
// index lives in memory and is lost on exit.
type Provider struct {
	dir string

	mu      sync.Mutex
	indexes map[string]bleve.Index
}

// NewProvider creates a provider rooted at dir.
func NewProvider(dir string) (*Provider, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
	}
	return &Provider{
		dir:     dir,
		indexes: make(map[string]bleve.Index),
	}, nil
}

// Open returns the index of def, creating it on first use.
func (p *Provider) Open(def metadata.EntityDef) (bleve.Index, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.indexes[def.Name]; ok {
		return idx, nil
	}

	idx, err := p.open(def)
	if err != nil {
		return nil, fmt.Errorf("open %s index: %w", def.Name, err)
	}
	p.indexes[def.Name] = idx
	return idx, nil
}

func (p *Provider) open(def metadata.EntityDef) (bleve.Index, error) {
	m := NewMapping(def)
	if p.dir == "" {
		return bleve.NewMemOnly(m)
	}

	path := filepath.Join(p.dir, def.Name+".bleve")
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		logger.Default().WithComponent("bleveindex").
			Infow("creating search index", "entity", def.Name, "path", path)
		return bleve.New(path, m)
	}
	return idx, err
}

// Stats returns the document count per open index.
func (p *Provider) Stats() map[string]uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := make(map[string]uint64, len(p.indexes))
	for name, idx := range p.indexes {
		n, err := idx.DocCount()
		if err != nil {
			continue
		}
		stats[name] = n
	}
	return stats
}

// Close closes every index. It returns the first error met.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.indexes))
	for name := range p.indexes {
		names = append(names, name)
	}
	sort.Strings(names)

	var firstErr error
	for _, name := range names {
		if err := p.indexes[name].Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s index: %w", name, err)
		}
		delete(p.indexes, name)
	}
	return firstErr
}
