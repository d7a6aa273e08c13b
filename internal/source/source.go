// Package source normalizes event sources into per-asset EventRecord lists.
//
// Two families of sources exist behind the single Source interface:
//
//   - eager sources hold their rows in memory (TableSource, FramesSource),
//     optionally read from CSV or Excel files;
//   - deferred sources describe a Query that is bound to a Backend (in-memory,
//     SQLite or Postgres) and executed once per load.
//
// Every source hands its rows to the same normalizer, so identical
// underlying data produces identical records regardless of source kind.
package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	loaderrors "pitloader/internal/errors"
	"pitloader/pkg/contracts/domain"
)

// Source resolves raw events for the requested assets
type Source interface {
	Resolve(ctx context.Context, req Request) (*Batch, error)
}

// Field declares a value column and the kind of data it must hold
type Field struct {
	Name string      `json:"name" yaml:"name" validate:"required"`
	Kind domain.Kind `json:"kind" yaml:"kind" validate:"oneof=1 2"`
}

// Schema names the columns a dataset requires from its source
type Schema struct {
	AssetColumn     string  `json:"asset_column" yaml:"asset_column" validate:"required"`
	KnowledgeColumn string  `json:"knowledge_column" yaml:"knowledge_column" validate:"required"`
	ReferenceColumn string  `json:"reference_column" yaml:"reference_column" validate:"required"`
	Values          []Field `json:"values" yaml:"values" validate:"required,min=1,dive"`
}

// Columns returns every required column in a stable order
func (s Schema) Columns() []string {
	cols := []string{s.AssetColumn, s.KnowledgeColumn, s.ReferenceColumn}
	for _, f := range s.Values {
		cols = append(cols, f.Name)
	}
	return cols
}

// Field returns the declared value field with the given name
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Values {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks that the schema is complete
func (s Schema) Validate() error {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	return nil
}

// Request describes what a load needs from a source
type Request struct {
	Schema Schema
	Assets []domain.AssetID

	// Until, when set, lets sources skip records known after this day.
	// Such records can never be visible inside the requested window.
	Until time.Time
}

// Batch holds normalized records for every requested asset. Assets with no
// events map to an empty list.
type Batch struct {
	Events map[domain.AssetID][]domain.EventRecord

	// Dropped counts degenerate records whose value fields were all null
	Dropped int
}

// Len returns the number of records in the batch
func (b *Batch) Len() int {
	n := 0
	for _, events := range b.Events {
		n += len(events)
	}
	return n
}

func newBatch(assets []domain.AssetID) *Batch {
	b := &Batch{Events: make(map[domain.AssetID][]domain.EventRecord, len(assets))}
	for _, a := range assets {
		b.Events[a] = []domain.EventRecord{}
	}
	return b
}

func checkRequest(req Request) error {
	if err := req.Schema.Validate(); err != nil {
		return loaderrors.NewSchemaError("", err.Error())
	}
	return nil
}
