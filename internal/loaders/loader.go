package loaders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"pitloader/internal/calendar"
	loaderrors "pitloader/internal/errors"
	"pitloader/internal/infrastructure"
	"pitloader/internal/projection"
	"pitloader/internal/source"
	"pitloader/pkg/contracts/domain"
)

// TracerName is the instrumentation scope of loader spans
const TracerName = "pitloader.loaders"

// Loader produces point-in-time columns of one dataset
type Loader struct {
	dataset  Dataset
	source   source.Source
	calendar *calendar.Calendar
	logger   *slog.Logger
	workers  int
	tracer   trace.Tracer
	metrics  *infrastructure.LoaderMetrics
}

// Option configures a Loader
type Option func(*Loader)

// WithLogger sets the loader logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithWorkers bounds per-asset projection concurrency; zero means
// GOMAXPROCS
func WithWorkers(n int) Option {
	return func(l *Loader) {
		l.workers = n
	}
}

// WithTracer sets the tracer for load spans
func WithTracer(t trace.Tracer) Option {
	return func(l *Loader) {
		if t != nil {
			l.tracer = t
		}
	}
}

// WithMetrics records load metrics on m
func WithMetrics(m *infrastructure.LoaderMetrics) Option {
	return func(l *Loader) {
		l.metrics = m
	}
}

// New creates a loader for any dataset
func New(dataset Dataset, src source.Source, cal *calendar.Calendar, opts ...Option) *Loader {
	l := &Loader{
		dataset:  dataset,
		source:   src,
		calendar: cal,
		logger:   slog.Default(),
		tracer:   otel.Tracer(TracerName),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(slog.String("dataset", dataset.Name))
	return l
}

// NewCashBuybackAuthorizationsLoader creates a loader for cash buyback
// authorizations
func NewCashBuybackAuthorizationsLoader(src source.Source, cal *calendar.Calendar, opts ...Option) *Loader {
	return New(CashBuybackAuthorizations(), src, cal, opts...)
}

// NewShareBuybackAuthorizationsLoader creates a loader for share-count
// buyback authorizations
func NewShareBuybackAuthorizationsLoader(src source.Source, cal *calendar.Calendar, opts ...Option) *Loader {
	return New(ShareBuybackAuthorizations(), src, cal, opts...)
}

// NewByName creates a loader for a dataset returned by Datasets
func NewByName(name string, src source.Source, cal *calendar.Calendar, opts ...Option) (*Loader, error) {
	dataset, ok := Datasets()[name]
	if !ok {
		return nil, fmt.Errorf("unknown dataset %q (known: %v)", name, DatasetNames())
	}
	return New(dataset, src, cal, opts...), nil
}

// Dataset returns the loader's dataset declaration
func (l *Loader) Dataset() Dataset { return l.dataset }

// Columns lists the logical columns the loader can produce
func (l *Loader) Columns() []string { return l.dataset.Columns() }

// Load produces the requested columns for every (day, asset) pair. An
// empty column list selects every column. days must be ascending trading
// days of the loader's calendar.
func (l *Loader) Load(ctx context.Context, columns []string, assets []domain.AssetID, days []time.Time) (*domain.OutputMatrix, error) {
	ctx = infrastructure.EnsureTraceID(ctx)
	start := time.Now()

	ctx, span := l.tracer.Start(ctx, "pit.load."+l.dataset.Name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("load.id", infrastructure.GetTraceID(ctx)),
			attribute.String("load.dataset", l.dataset.Name),
			attribute.Int("load.days", len(days)),
			attribute.Int("load.assets", len(assets)),
		),
	)
	defer span.End()

	l.logger.InfoContext(ctx, "load started",
		slog.Any("columns", columns),
		slog.Int("days", len(days)),
		slog.Int("assets", len(assets)))

	m, err := l.load(ctx, columns, assets, days)
	duration := time.Since(start)
	if err != nil {
		errorType := string(loaderrors.GetErrorType(err))
		if errorType == "" {
			errorType = "internal"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		infrastructure.RecordLoadMetrics(ctx, l.metrics, l.dataset.Name, duration, errorType)
		l.logger.ErrorContext(ctx, "load failed",
			slog.String("error", err.Error()),
			slog.String("error_type", errorType),
			slog.Duration("duration", duration))
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	infrastructure.RecordLoadMetrics(ctx, l.metrics, l.dataset.Name, duration, "")
	l.logger.InfoContext(ctx, "load completed",
		slog.Int("columns", len(m.Columns)),
		slog.Duration("duration", duration))
	return m, nil
}

// LoadRange is Load over every trading day in [start, end]
func (l *Loader) LoadRange(ctx context.Context, columns []string, assets []domain.AssetID, start, end time.Time) (*domain.OutputMatrix, error) {
	if l.calendar == nil {
		return nil, loaderrors.NewCalendarRangeError("no trading calendar configured")
	}
	return l.Load(ctx, columns, assets, l.calendar.Range(start, end))
}

func (l *Loader) load(ctx context.Context, columns []string, assets []domain.AssetID, days []time.Time) (*domain.OutputMatrix, error) {
	plan, err := l.plan(columns)
	if err != nil {
		return nil, err
	}
	if l.calendar == nil {
		return nil, loaderrors.NewCalendarRangeError("no trading calendar configured")
	}

	normalized := make([]time.Time, len(days))
	for i, d := range days {
		normalized[i] = domain.TruncateDay(d)
	}
	// reject bad days before touching the source
	if _, err := l.calendar.Validate(normalized); err != nil {
		return nil, err
	}
	if l.source == nil {
		return nil, loaderrors.NewSourceResolutionError("loader has no event source", nil)
	}

	var until time.Time
	if len(normalized) > 0 {
		until = normalized[len(normalized)-1]
	}

	batch, err := l.resolve(ctx, source.Request{
		Schema: l.dataset.Schema,
		Assets: assets,
		Until:  until,
	})
	if err != nil {
		return nil, err
	}

	engine := projection.NewEngine(l.calendar,
		projection.WithLogger(l.logger),
		projection.WithWorkers(l.workers),
		projection.WithTracer(l.tracer))
	m, err := engine.Project(ctx, plan, assets, normalized, batch.Events)
	if err != nil {
		return nil, err
	}

	if l.metrics != nil {
		cells := int64(len(m.Days) * len(m.Assets) * len(m.Columns))
		l.metrics.CellsProjected.Add(ctx, cells,
			metric.WithAttributes(attribute.String("dataset", l.dataset.Name)))
	}
	return m, nil
}

func (l *Loader) resolve(ctx context.Context, req source.Request) (*source.Batch, error) {
	ctx, span := l.tracer.Start(ctx, "pit.source.resolve",
		trace.WithAttributes(attribute.Int("source.assets", len(req.Assets))))
	defer span.End()

	batch, err := l.source.Resolve(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("source.events", batch.Len()),
		attribute.Int("source.dropped", batch.Dropped))
	if l.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("dataset", l.dataset.Name))
		l.metrics.EventsResolved.Add(ctx, int64(batch.Len()), attrs)
		l.metrics.EventsDropped.Add(ctx, int64(batch.Dropped), attrs)
	}
	l.logger.DebugContext(ctx, "events resolved",
		slog.Int("events", batch.Len()),
		slog.Int("dropped", batch.Dropped))
	return batch, nil
}

// plan maps requested logical columns onto projection specs
func (l *Loader) plan(columns []string) (projection.Plan, error) {
	if len(columns) == 0 {
		columns = l.Columns()
	}

	plan := projection.Plan{ReferenceColumn: l.dataset.Schema.ReferenceColumn}
	seen := make(map[string]bool, len(columns))
	for _, name := range columns {
		if seen[name] {
			continue
		}
		seen[name] = true

		spec, ok := l.spec(name)
		if !ok {
			return projection.Plan{}, loaderrors.NewSchemaError(name, "unknown column").
				WithContext("dataset", l.dataset.Name).
				WithContext("available", l.Columns())
		}
		plan.Columns = append(plan.Columns, spec)
	}
	return plan, nil
}

func (l *Loader) spec(name string) (projection.ColumnSpec, bool) {
	if name != "" && name == l.dataset.DaysSince {
		return projection.ColumnSpec{
			Name:   name,
			Kind:   domain.KindInt,
			Source: l.dataset.Schema.ReferenceColumn,
			Derive: projection.DeriveDaysSince,
		}, true
	}
	for _, o := range l.dataset.Outputs {
		if o.Name == name {
			return projection.ColumnSpec{Name: o.Name, Kind: o.Kind, Source: o.Source}, true
		}
	}
	return projection.ColumnSpec{}, false
}
