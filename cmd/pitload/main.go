package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"pitloader/internal/calendar"
	"pitloader/internal/config"
	"pitloader/internal/exporter"
	"pitloader/internal/infrastructure"
	"pitloader/internal/loaders"
	"pitloader/internal/source"
	transport "pitloader/internal/transport/http"
	"pitloader/internal/validation"
	"pitloader/pkg/contracts"
	"pitloader/pkg/contracts/domain"
)

const runtimeSampleInterval = 15 * time.Second

// options are the command-line flags; they override the config file
type options struct {
	configPath string
	dataset    string
	calendar   string
	start      string
	end        string
	assets     string
	columns    string
	out        string
	widePrefix string
	serve      bool
	version    bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("pitload", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "config file (defaults to PIT_CONFIG or pitloader.yaml)")
	fs.StringVar(&o.dataset, "dataset", "", "dataset to load: "+strings.Join(loaders.DatasetNames(), " | "))
	fs.StringVar(&o.calendar, "calendar", "", "trading calendar file; Monday to Friday when empty")
	fs.StringVar(&o.start, "start", "", "first day of the window (YYYY-MM-DD)")
	fs.StringVar(&o.end, "end", "", "last day of the window (YYYY-MM-DD)")
	fs.StringVar(&o.assets, "assets", "", "comma-separated sids; all sids in the file when empty")
	fs.StringVar(&o.columns, "columns", "", "comma-separated output columns; all when empty")
	fs.StringVar(&o.out, "out", "-", "long-format csv output file, - for stdout")
	fs.StringVar(&o.widePrefix, "wide", "", "also write one wide csv per column using this path prefix")
	fs.BoolVar(&o.serve, "serve", false, "keep the ops server running after the load")
	fs.BoolVar(&o.version, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.version {
		return o, nil
	}
	if o.start == "" || o.end == "" {
		return o, errors.New("-start and -end are required")
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if opts.version {
		fmt.Println(contracts.GetFullVersionString())
		return
	}

	var cfg *config.Config
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		slog.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", slog.String("error", err.Error()))
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, cfg, logger, os.Stdout); err != nil {
		logger.Error("Load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run loads the dataset and writes it out. With -serve it blocks until ctx
// is cancelled.
func run(ctx context.Context, opts options, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	if opts.dataset != "" {
		cfg.Loader.Dataset = opts.dataset
	}
	if opts.calendar != "" {
		cfg.Calendar.Path = opts.calendar
	}

	start, err := calendar.ParseDate(opts.start)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}
	end, err := calendar.ParseDate(opts.end)
	if err != nil {
		return fmt.Errorf("invalid -end: %w", err)
	}

	otelCfg := infrastructure.OTelConfigFrom(cfg.Telemetry)
	otelCfg.TraceWriter = os.Stderr
	providers, err := infrastructure.InitializeOTel(otelCfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}()

	metrics, err := infrastructure.CreateLoaderMetrics(providers.Meter)
	if err != nil {
		return err
	}

	tracker := transport.NewStatusTracker()
	var server *transport.Server
	if cfg.Server.Addr != "" {
		router := transport.NewRouter(transport.NewHealthHandler(tracker, logger), providers.PrometheusHTTP, logger)
		server = transport.NewServer(cfg.Server.Addr, router, cfg.Server.ReadTimeout, cfg.Server.ShutdownTimeout, logger)
		if _, err := server.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := server.Stop(context.Background()); err != nil {
				logger.Error("Error stopping ops server", slog.String("error", err.Error()))
			}
		}()
	}

	cal, err := openCalendar(cfg.Calendar, start, end)
	if err != nil {
		return err
	}

	files := validation.NewFileValidator(logger)
	src, assets, closeSource, err := openSource(ctx, cfg.Source, loaders.SidField, files)
	if err != nil {
		return err
	}
	defer closeSource()

	if opts.assets != "" {
		if assets, err = parseAssets(opts.assets); err != nil {
			return err
		}
	}
	if assets == nil {
		return fmt.Errorf("-assets is required for %s sources", cfg.Source.Kind)
	}

	loader, err := loaders.NewByName(cfg.Loader.Dataset, src, cal,
		loaders.WithLogger(logger),
		loaders.WithWorkers(cfg.Loader.Workers),
		loaders.WithTracer(providers.Tracer),
		loaders.WithMetrics(metrics))
	if err != nil {
		return err
	}

	columns := splitList(opts.columns)
	m, err := loader.LoadRange(ctx, columns, assets, start, end)
	status := transport.LoadStatus{Dataset: cfg.Loader.Dataset, Finished: time.Now()}
	if err != nil {
		tracker.Record(status, err)
		return err
	}
	status.Days, status.Assets = len(m.Days), len(m.Assets)
	tracker.Record(status, nil)

	if err := writeOutput(opts, m, columns, files, logger, stdout); err != nil {
		return err
	}

	if opts.serve && server != nil {
		if providers.MeterProvider != nil {
			collector, err := infrastructure.NewSystemMetricsCollector(providers.Meter, runtimeSampleInterval)
			if err != nil {
				return err
			}
			go collector.Start(ctx)
			defer collector.Stop()
		}
		logger.InfoContext(ctx, "Serving until interrupted")
		<-ctx.Done()
	}
	return nil
}

func openCalendar(cfg config.CalendarConfig, start, end time.Time) (*calendar.Calendar, error) {
	if cfg.Path == "" {
		return calendar.Weekdays(start, end), nil
	}
	return calendar.LoadFile(cfg.Path)
}

// openSource builds the configured source. File sources also report every
// asset they hold; database sources return nil assets.
func openSource(ctx context.Context, cfg config.SourceConfig, assetColumn string, files *validation.FileValidator) (source.Source, []domain.AssetID, func(), error) {
	noop := func() {}

	if cfg.Kind != "postgres" {
		if err := files.ValidateSourceFile(cfg.Kind, cfg.Path); err != nil {
			return nil, nil, noop, err
		}
	}

	switch cfg.Kind {
	case "csv", "xlsx":
		var table *source.Table
		var err error
		if cfg.Kind == "csv" {
			table, err = source.ReadCSVFile(cfg.Path)
		} else {
			table, err = source.ReadWorkbook(cfg.Path, cfg.Sheet)
		}
		if err != nil {
			return nil, nil, noop, err
		}
		assets, err := table.Assets(assetColumn)
		if err != nil {
			return nil, nil, noop, err
		}
		return source.NewTableSource(table), assets, noop, nil

	case "sqlite":
		db, err := source.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, noop, err
		}
		backend := source.NewSQLBackend(db)
		q := source.Query{Table: cfg.Table, OrderColumn: cfg.OrderColumn, Backend: backend}
		return source.NewDeferredSource(q, nil), nil, func() { _ = backend.Close() }, nil

	case "postgres":
		poolOpts := source.DefaultPoolOptions()
		if cfg.MaxConns > 0 {
			poolOpts.MaxConns = cfg.MaxConns
		}
		pool, err := source.ConnectPostgres(ctx, cfg.DSN, poolOpts)
		if err != nil {
			return nil, nil, noop, err
		}
		backend := source.NewPgxBackend(pool)
		q := source.Query{Table: cfg.Table, OrderColumn: cfg.OrderColumn, Backend: backend}
		return source.NewDeferredSource(q, nil), nil, backend.Close, nil
	}
	return nil, nil, noop, fmt.Errorf("unsupported source kind %q", cfg.Kind)
}

func writeOutput(opts options, m *domain.OutputMatrix, columns []string, files *validation.FileValidator, logger *slog.Logger, stdout io.Writer) error {
	exp := exporter.NewMatrixExporter("", logger)

	if opts.out == "-" || opts.out == "" {
		if err := exporter.WriteLong(stdout, m, columns); err != nil {
			return err
		}
	} else {
		if err := files.ValidateOutputDirectory(filepath.Dir(opts.out)); err != nil {
			return err
		}
		if err := exp.ExportLong(opts.out, m, columns); err != nil {
			return err
		}
	}

	if opts.widePrefix != "" {
		files, err := exp.ExportWide(opts.widePrefix, m)
		if err != nil {
			return err
		}
		logger.Info("Wrote wide files", slog.Int("count", len(files)))
	}
	return nil
}

func parseAssets(s string) ([]domain.AssetID, error) {
	var assets []domain.AssetID
	for _, part := range splitList(s) {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid asset %q: %w", part, err)
		}
		assets = append(assets, domain.AssetID(n))
	}
	return assets, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
