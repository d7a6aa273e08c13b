package loaders

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"pitloader/internal/calendar"
	loaderrors "pitloader/internal/errors"
	"pitloader/internal/infrastructure"
	"pitloader/internal/shared/testutil"
	"pitloader/internal/source"
	"pitloader/pkg/contracts/domain"
)

var scenarioAssets = []domain.AssetID{0, 1}

func scenarioCalendar() *calendar.Calendar {
	return testutil.January2014("2014-01-04", "2014-01-09")
}

func buybackTable() *source.Table {
	return tableOf(testutil.BuybackRows())
}

func tableOf(rows []testutil.BuybackRow) *source.Table {
	t := source.NewTable(SidField, TimestampField, BuybackDateField, CashAmountField, ShareCountField)
	for _, r := range rows {
		t.MustAppend(int64(r.Asset), r.Knowledge, r.Reference, r.CashAmount, r.ShareCount)
	}
	return t
}

func buybackFrames() map[domain.AssetID]*source.Table {
	frames := map[domain.AssetID]*source.Table{
		1: source.NewTable(TimestampField, BuybackDateField, CashAmountField, ShareCountField),
	}
	for _, r := range testutil.BuybackRows() {
		f, ok := frames[r.Asset]
		if !ok {
			f = source.NewTable(TimestampField, BuybackDateField, CashAmountField, ShareCountField)
			frames[r.Asset] = f
		}
		f.MustAppend(r.Knowledge, r.Reference, r.CashAmount, r.ShareCount)
	}
	return frames
}

func sqliteSource(t *testing.T) source.Source {
	t.Helper()
	return sqliteSourceOf(t, testutil.BuybackRows())
}

func sqliteSourceOf(t *testing.T, rows []testutil.BuybackRow) source.Source {
	t.Helper()
	db, err := source.OpenSQLite(filepath.Join(t.TempDir(), "buyback.db"))
	require.NoError(t, err)
	backend := source.NewSQLBackend(db)
	t.Cleanup(func() { _ = backend.Close() })

	_, err = db.Exec(`CREATE TABLE buyback_auth (
		sid INTEGER NOT NULL,
		"timestamp" TEXT NOT NULL,
		buyback_date TEXT,
		cash_amount REAL,
		share_count REAL
	)`)
	require.NoError(t, err)
	for _, r := range rows {
		_, err := db.Exec(`INSERT INTO buyback_auth VALUES (?, ?, ?, ?, ?)`,
			int64(r.Asset), r.Knowledge, r.Reference, r.CashAmount, r.ShareCount)
		require.NoError(t, err)
	}
	return source.NewDeferredSource(source.Query{Resource: "events", Table: "buyback_auth"},
		source.Scope{"events": backend})
}

func scenarioSources(t *testing.T) map[string]source.Source {
	return map[string]source.Source{
		"table":  source.NewTableSource(buybackTable()),
		"frames": source.NewFramesSource(buybackFrames()),
		"memory": source.NewDeferredSource(source.Query{
			Table:   "buyback_auth",
			Backend: source.NewMemoryBackend().Add("buyback_auth", buybackTable()),
		}, nil),
		"sqlite": sqliteSource(t),
	}
}

type expectation struct {
	value     domain.Value
	announced domain.Value
	daysSince domain.Value
}

// expectedAsset0 is the hand-computed history of the asset with events
func expectedAsset0(d time.Time, first, second float64) expectation {
	switch {
	case d.Before(testutil.Day("2014-01-05")):
		return expectation{}
	case d.Before(testutil.Day("2014-01-10")):
		return expectation{
			value:     domain.FloatValue(first),
			announced: domain.DateValue(testutil.Day("2014-01-04")),
			daysSince: domain.IntValue(int64(d.Sub(testutil.Day("2014-01-05")).Hours() / 24)),
		}
	default:
		return expectation{
			value:     domain.FloatValue(second),
			announced: domain.DateValue(testutil.Day("2014-01-09")),
			daysSince: domain.IntValue(int64(d.Sub(testutil.Day("2014-01-10")).Hours() / 24)),
		}
	}
}

func TestBuybackScenario(t *testing.T) {
	variants := []struct {
		name          string
		newLoader     func(source.Source, *calendar.Calendar, ...Option) *Loader
		valueColumn   string
		first, second float64
	}{
		{"cash", NewCashBuybackAuthorizationsLoader, CashOutputName, 10, 20},
		{"share", NewShareBuybackAuthorizationsLoader, ShareOutputName, 1, 15},
	}

	cal := scenarioCalendar()
	for _, v := range variants {
		for srcName, src := range scenarioSources(t) {
			t.Run(v.name+"/"+srcName, func(t *testing.T) {
				loader := v.newLoader(src, cal, WithWorkers(2))
				m, err := loader.Load(context.Background(), nil, scenarioAssets, cal.Days())
				require.NoError(t, err)

				assert.ElementsMatch(t, []string{v.valueColumn, AnnouncementName, DaysSinceName}, keys(m.Columns))
				value := m.Column(v.valueColumn)
				announced := m.Column(AnnouncementName)
				since := m.Column(DaysSinceName)

				for i, d := range m.Days {
					want := expectedAsset0(d, v.first, v.second)
					assert.Equal(t, want.value, value.At(i, 0), "value %s", d.Format(domain.DateLayout))
					assert.Equal(t, want.announced, announced.At(i, 0), "announcement %s", d.Format(domain.DateLayout))
					assert.Equal(t, want.daysSince, since.At(i, 0), "days since %s", d.Format(domain.DateLayout))

					assert.True(t, value.At(i, 1).IsNull())
					assert.True(t, announced.At(i, 1).IsNull())
					assert.True(t, since.At(i, 1).IsNull())
				}
			})
		}
	}
}

func keys(m map[string]*domain.Column) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestWeekdayCalendarScenario(t *testing.T) {
	cal := calendar.Weekdays(testutil.Day("2014-01-02"), testutil.Day("2014-01-15"))
	table := source.NewTable(SidField, TimestampField, BuybackDateField, CashAmountField).
		MustAppend(int64(0), "2014-01-05", "2014-01-04", 10.0).
		MustAppend(int64(0), "2014-01-10", "2014-01-09", 20.0)

	loader := NewCashBuybackAuthorizationsLoader(source.NewTableSource(table), cal)
	m, err := loader.Load(context.Background(), []string{CashOutputName, DaysSinceName}, []domain.AssetID{0}, cal.Days())
	require.NoError(t, err)

	tests := []struct {
		day   string
		cash  domain.Value
		since domain.Value
	}{
		{"2014-01-03", domain.Null(), domain.Null()},
		{"2014-01-06", domain.FloatValue(10), domain.IntValue(0)},
		{"2014-01-09", domain.FloatValue(10), domain.IntValue(3)},
		{"2014-01-10", domain.FloatValue(20), domain.IntValue(1)},
		{"2014-01-15", domain.FloatValue(20), domain.IntValue(4)},
	}
	for _, tt := range tests {
		i, ok := m.DayIndex(testutil.Day(tt.day))
		require.True(t, ok, tt.day)
		assert.Equal(t, tt.cash, m.Column(CashOutputName).At(i, 0), tt.day)
		assert.Equal(t, tt.since, m.Column(DaysSinceName).At(i, 0), tt.day)
	}
}

func TestKnowledgeOnLastDayAcrossLayouts(t *testing.T) {
	layouts := []string{
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
		"01-02-06",
		"2006-01-02 15:04:05",
		time.RFC3339,
	}
	cal := scenarioCalendar()
	window := cal.Range(testutil.Day("2014-01-02"), testutil.Day("2014-01-10"))
	last := len(window) - 1

	for _, layout := range layouts {
		t.Run(layout, func(t *testing.T) {
			at := func(s string) string {
				return testutil.Day(s).Add(15*time.Hour + 30*time.Minute).Format(layout)
			}
			rows := []testutil.BuybackRow{
				{Asset: 0, Knowledge: at("2014-01-05"), Reference: "2014-01-04", CashAmount: 10.0},
				{Asset: 0, Knowledge: at("2014-01-10"), Reference: "2014-01-09", CashAmount: 20.0},
				{Asset: 0, Knowledge: at("2014-01-11"), Reference: "2014-01-11", CashAmount: 99.0},
			}

			eager, err := NewCashBuybackAuthorizationsLoader(source.NewTableSource(tableOf(rows)), cal).
				Load(context.Background(), nil, scenarioAssets, window)
			require.NoError(t, err)
			deferred, err := NewCashBuybackAuthorizationsLoader(sqliteSourceOf(t, rows), cal).
				Load(context.Background(), nil, scenarioAssets, window)
			require.NoError(t, err)

			cash := eager.Column(CashOutputName)
			assert.Equal(t, domain.FloatValue(20), cash.At(last, 0))
			assert.Equal(t, domain.DateValue(testutil.Day("2014-01-09")), eager.Column(AnnouncementName).At(last, 0))
			assert.Equal(t, domain.IntValue(0), eager.Column(DaysSinceName).At(last, 0))
			assert.Equal(t, domain.FloatValue(10), cash.At(last-1, 0))

			require.Equal(t, eager.Days, deferred.Days)
			for name, col := range eager.Columns {
				for i := range window {
					assert.Equal(t, col.Row(i), deferred.Column(name).Row(i), "%s %s", name, window[i].Format(domain.DateLayout))
				}
			}
		})
	}
}

func TestLoadColumnSelection(t *testing.T) {
	cal := scenarioCalendar()
	loader := NewCashBuybackAuthorizationsLoader(source.NewTableSource(buybackTable()), cal)

	t.Run("days since alone", func(t *testing.T) {
		m, err := loader.Load(context.Background(), []string{DaysSinceName}, scenarioAssets, cal.Days())
		require.NoError(t, err)
		require.Len(t, m.Columns, 1)

		i, _ := m.DayIndex(testutil.Day("2014-01-31"))
		assert.Equal(t, domain.IntValue(21), m.Column(DaysSinceName).At(i, 0))
	})

	t.Run("unknown column", func(t *testing.T) {
		_, err := loader.Load(context.Background(), []string{ShareOutputName}, scenarioAssets, cal.Days())
		require.Error(t, err)
		assert.True(t, loaderrors.IsSchemaError(err))
	})

	t.Run("columns listing", func(t *testing.T) {
		assert.Equal(t, []string{CashOutputName, AnnouncementName, DaysSinceName}, loader.Columns())
	})
}

func TestLoadNoLookAhead(t *testing.T) {
	cal := scenarioCalendar()
	loader := NewCashBuybackAuthorizationsLoader(source.NewTableSource(buybackTable()), cal)

	full, err := loader.Load(context.Background(), nil, scenarioAssets, cal.Days())
	require.NoError(t, err)

	prefix := cal.Range(testutil.Day("2014-01-01"), testutil.Day("2014-01-08"))
	partial, err := loader.Load(context.Background(), nil, scenarioAssets, prefix)
	require.NoError(t, err)

	for name, col := range partial.Columns {
		for i := range prefix {
			assert.Equal(t, full.Column(name).Row(i), col.Row(i), name)
		}
	}
}

type countingSource struct {
	source.Source
	calls int
}

func (c *countingSource) Resolve(ctx context.Context, req source.Request) (*source.Batch, error) {
	c.calls++
	return c.Source.Resolve(ctx, req)
}

func TestLoadRejectsBadDaysBeforeResolving(t *testing.T) {
	cal := scenarioCalendar()
	src := &countingSource{Source: source.NewTableSource(buybackTable())}
	loader := NewCashBuybackAuthorizationsLoader(src, cal)

	_, err := loader.Load(context.Background(), nil, scenarioAssets,
		[]time.Time{testutil.Day("2014-01-03"), testutil.Day("2014-01-04")})
	require.Error(t, err)
	assert.True(t, loaderrors.IsCalendarRangeError(err))
	assert.Equal(t, 0, src.calls)

	_, err = loader.Load(context.Background(), nil, scenarioAssets, cal.Days())
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "source resolved once per load")
}

func TestLoadPropagatesSourceErrors(t *testing.T) {
	cal := scenarioCalendar()

	thin := source.NewTable(SidField, TimestampField, BuybackDateField)
	_, err := NewShareBuybackAuthorizationsLoader(source.NewTableSource(thin), cal).
		Load(context.Background(), nil, scenarioAssets, cal.Days())
	assert.True(t, loaderrors.IsSchemaError(err))

	unbound := source.NewDeferredSource(source.Query{Table: "nowhere"}, source.Scope{})
	_, err = NewCashBuybackAuthorizationsLoader(unbound, cal).
		Load(context.Background(), nil, scenarioAssets, cal.Days())
	assert.True(t, loaderrors.IsSourceResolutionError(err))

	_, err = NewCashBuybackAuthorizationsLoader(nil, cal).
		Load(context.Background(), nil, scenarioAssets, cal.Days())
	assert.True(t, loaderrors.IsSourceResolutionError(err))
}

func TestLoadRange(t *testing.T) {
	cal := scenarioCalendar()
	loader := NewCashBuybackAuthorizationsLoader(source.NewTableSource(buybackTable()), cal)

	m, err := loader.LoadRange(context.Background(), []string{CashOutputName}, scenarioAssets,
		testutil.Day("2014-01-04"), testutil.Day("2014-01-06"))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{testutil.Day("2014-01-05"), testutil.Day("2014-01-06")}, m.Days)
}

func TestNewByName(t *testing.T) {
	cal := scenarioCalendar()
	l, err := NewByName("share", source.NewTableSource(buybackTable()), cal)
	require.NoError(t, err)
	assert.Equal(t, SharesDatasetName, l.Dataset().Name)

	_, err = NewByName("dividends", nil, cal)
	assert.Error(t, err)
	assert.Equal(t, []string{"cash", "share"}, DatasetNames())
}

func TestLoadObservability(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()
	metrics, err := infrastructure.CreateLoaderMetrics(mp.Meter("test"))
	require.NoError(t, err)

	cal := scenarioCalendar()
	loader := NewCashBuybackAuthorizationsLoader(source.NewTableSource(buybackTable()), cal,
		WithLogger(logger),
		WithTracer(tp.Tracer(TracerName)),
		WithMetrics(metrics))

	ctx := infrastructure.WithTraceID(context.Background(), "load-42")
	_, err = loader.Load(ctx, nil, scenarioAssets, cal.Days())
	require.NoError(t, err)
	_, err = loader.Load(ctx, []string{"bogus"}, scenarioAssets, cal.Days())
	require.Error(t, err)

	testutil.AssertLogContains(t, handler, slog.LevelInfo, "load completed")
	testutil.AssertLogContains(t, handler, slog.LevelError, "load failed")
	testutil.AssertLogAttr(t, handler, "dataset", "cash")
	testutil.AssertLogAttr(t, handler, "error_type", "schema")

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "pit.load.cash")
	assert.Contains(t, names, "pit.source.resolve")
	assert.Contains(t, names, "pit.project")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, mm := range sm.Metrics {
			if data, ok := mm.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[mm.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), sums["pit_loads_total"])
	assert.Equal(t, int64(1), sums["pit_load_errors_total"])
	assert.Equal(t, int64(2), sums["pit_events_resolved_total"])
	assert.Equal(t, int64(29*2*3), sums["pit_cells_projected_total"])
}
