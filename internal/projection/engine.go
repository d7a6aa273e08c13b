// Package projection turns per-asset event histories into dense day × asset
// columns using only information known on each day.
package projection

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"pitloader/internal/calendar"
	loaderrors "pitloader/internal/errors"
	"pitloader/pkg/contracts/domain"
)

// TracerName is the instrumentation scope of projection spans
const TracerName = "pitloader.projection"

// Derivation selects how a column is computed from the as-of record
type Derivation int

const (
	// DeriveField copies a value field (or the reference date) forward
	DeriveField Derivation = iota
	// DeriveDaysSince counts trading days since the reference date
	DeriveDaysSince
)

// ColumnSpec describes one output column
type ColumnSpec struct {
	Name   string
	Kind   domain.Kind
	Source string
	Derive Derivation
}

// Plan is the set of columns to project for one load
type Plan struct {
	// ReferenceColumn makes the reference date addressable as a Source
	ReferenceColumn string
	Columns         []ColumnSpec
}

// Engine projects events onto a trading calendar
type Engine struct {
	calendar *calendar.Calendar
	logger   *slog.Logger
	workers  int
	tracer   trace.Tracer
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithWorkers bounds how many assets are projected concurrently
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithTracer sets the tracer used for projection spans
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// NewEngine creates an engine over cal
func NewEngine(cal *calendar.Calendar, opts ...Option) *Engine {
	e := &Engine{
		calendar: cal,
		logger:   slog.Default(),
		workers:  runtime.GOMAXPROCS(0),
		tracer:   otel.Tracer(TracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Calendar returns the engine's trading calendar
func (e *Engine) Calendar() *calendar.Calendar { return e.calendar }

// Project fills one column per plan entry for every (day, asset) pair.
// days must be ascending trading days; duplicate assets keep their first
// position. Either every column is produced or an error is returned.
func (e *Engine) Project(ctx context.Context, plan Plan, assets []domain.AssetID, days []time.Time, events map[domain.AssetID][]domain.EventRecord) (*domain.OutputMatrix, error) {
	ctx, span := e.tracer.Start(ctx, "pit.project",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int("projection.days", len(days)),
			attribute.Int("projection.assets", len(assets)),
			attribute.Int("projection.columns", len(plan.Columns)),
		),
	)
	defer span.End()

	m, err := e.project(ctx, plan, assets, days, events)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return m, nil
}

func (e *Engine) project(ctx context.Context, plan Plan, assets []domain.AssetID, days []time.Time, events map[domain.AssetID][]domain.EventRecord) (*domain.OutputMatrix, error) {
	if e.calendar == nil {
		return nil, loaderrors.NewCalendarRangeError("no trading calendar configured")
	}

	normalized := make([]time.Time, len(days))
	for i, d := range days {
		normalized[i] = domain.TruncateDay(d)
	}
	if _, err := e.calendar.Validate(normalized); err != nil {
		return nil, err
	}
	for _, c := range plan.Columns {
		if c.Derive == DeriveField && c.Source == "" {
			return nil, loaderrors.NewSchemaError(c.Name, "column has no source field")
		}
	}

	assets = uniqueAssets(assets)
	m := domain.NewOutputMatrix(normalized, assets)
	columns := make([]*domain.Column, len(plan.Columns))
	for k, spec := range plan.Columns {
		columns[k] = domain.NewColumn(spec.Name, spec.Kind, normalized, assets)
		m.Columns[spec.Name] = columns[k]
	}

	if len(normalized) == 0 || len(assets) == 0 {
		return m, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for j, asset := range assets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e.fillAsset(plan, columns, j, NewIndex(events[asset]), normalized)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("projection cancelled: %w", err)
	}

	e.logger.DebugContext(ctx, "projection complete",
		slog.Int("days", len(normalized)),
		slog.Int("assets", len(assets)),
		slog.Int("columns", len(columns)))
	return m, nil
}

// fillAsset writes column j of every output. Each asset owns a disjoint
// set of cells so workers never share writes.
func (e *Engine) fillAsset(plan Plan, columns []*domain.Column, j int, ix *Index, days []time.Time) {
	if ix.Len() == 0 {
		return
	}
	cur := ix.cursor()
	for i, d := range days {
		record, ok := cur.advance(d)
		if !ok {
			continue
		}
		for k, spec := range plan.Columns {
			columns[k].Set(i, j, e.derive(spec, plan.ReferenceColumn, record, d))
		}
	}
}

func (e *Engine) derive(spec ColumnSpec, refColumn string, record domain.EventRecord, day time.Time) domain.Value {
	switch spec.Derive {
	case DeriveDaysSince:
		n, ok := BusinessDaysSince(e.calendar, record.ReferenceDate, day)
		if !ok {
			return domain.Null()
		}
		return domain.IntValue(n)
	default:
		return record.Field(spec.Source, refColumn)
	}
}

func uniqueAssets(assets []domain.AssetID) []domain.AssetID {
	seen := make(map[domain.AssetID]bool, len(assets))
	out := make([]domain.AssetID, 0, len(assets))
	for _, a := range assets {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}
