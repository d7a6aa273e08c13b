package source

import (
	"context"
	"fmt"
	"sync"

	"pitloader/pkg/contracts/domain"
)

// MemoryBackend serves deferred queries from named in-memory tables
type MemoryBackend struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{tables: make(map[string]*Table)}
}

// Add registers a table under a name, replacing any previous one
func (b *MemoryBackend) Add(name string, t *Table) *MemoryBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tables[name] = t
	return b
}

// Fetch implements Backend
func (b *MemoryBackend) Fetch(ctx context.Context, stmt Statement) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	t, ok := b.tables[stmt.Table]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no table with key %s", stmt.Table)
	}

	if missing := missingColumns(stmt.Columns, t.Columns); len(missing) > 0 {
		return nil, schemaErrorFor(missing)
	}

	projected := t.Project(stmt.Columns)
	assetIdx := projected.positions()[stmt.AssetColumn]
	wanted := make(map[domain.AssetID]bool, len(stmt.Assets))
	for _, a := range stmt.Assets {
		wanted[a] = true
	}

	out := &Table{Columns: projected.Columns}
	for _, row := range projected.Rows {
		asset, err := toAsset(row[assetIdx])
		if err != nil {
			// left for the normalizer to report with row context
			out.Rows = append(out.Rows, row)
			continue
		}
		if wanted[asset] {
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}
