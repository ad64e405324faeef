package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/syssam/ogm"
	"github.com/syssam/ogm/dialect"
	"github.com/syssam/ogm/dialect/bolt"
	"github.com/syssam/ogm/dialect/memory"
	"github.com/syssam/ogm/dialect/rest"
	"github.com/syssam/ogm/dialect/sql"
	"github.com/syssam/ogm/entityaccess"
	"github.com/syssam/ogm/metadata"
	"github.com/syssam/ogm/privacy"

	// Database drivers for the SQL dialects.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Factory opens sessions sharing one metadata registry and one transport.
// It is safe for concurrent use; the sessions it opens are not.
type Factory struct {
	registry *metadata.Registry
	access   *entityaccess.Strategy
	driver   dialect.Driver
	stats    *dialect.StatsDriver
	policy   *privacy.Policy
	logger   *slog.Logger
}

type factoryOptions struct {
	logger      *slog.Logger
	driver      dialect.Driver
	tracer      trace.Tracer
	policy      *privacy.Policy
	registry    []metadata.Option
	httpOptions []rest.Option
	boltOptions []bolt.Option
}

// Option configures the Factory.
type Option func(*factoryOptions)

// WithLogger sets the logger shared by the factory, its transport and its
// sessions.
func WithLogger(l *slog.Logger) Option {
	return func(o *factoryOptions) {
		o.logger = l
	}
}

// WithDriver uses drv as the transport instead of opening the one named by
// the configuration.
func WithDriver(drv dialect.Driver) Option {
	return func(o *factoryOptions) {
		o.driver = drv
	}
}

// WithTracer records a span for every transport call.
func WithTracer(t trace.Tracer) Option {
	return func(o *factoryOptions) {
		o.tracer = t
	}
}

// WithPolicy evaluates p before every session operation. A denied
// operation fails without reaching the transport.
func WithPolicy(p privacy.Policy) Option {
	return func(o *factoryOptions) {
		o.policy = &p
	}
}

// WithRegistryOptions configures the metadata registry.
func WithRegistryOptions(opts ...metadata.Option) Option {
	return func(o *factoryOptions) {
		o.registry = append(o.registry, opts...)
	}
}

// WithHTTPOptions configures the HTTP transport.
func WithHTTPOptions(opts ...rest.Option) Option {
	return func(o *factoryOptions) {
		o.httpOptions = append(o.httpOptions, opts...)
	}
}

// WithBoltOptions configures the Bolt transport.
func WithBoltOptions(opts ...bolt.Option) Option {
	return func(o *factoryOptions) {
		o.boltOptions = append(o.boltOptions, opts...)
	}
}

// NewFactory validates cfg, registers the entity classes found under its
// scan roots in source and opens the configured transport.
func NewFactory(ctx context.Context, cfg *ogm.Config, source metadata.Source, opts ...Option) (*Factory, error) {
	o := &factoryOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	registry := metadata.NewRegistry(source, append([]metadata.Option{metadata.WithLogger(o.logger)}, o.registry...)...)
	if err := registry.Register(ctx, cfg.ScanRoots...); err != nil {
		return nil, err
	}
	drv := o.driver
	if drv == nil {
		var err error
		if drv, err = openDriver(ctx, cfg, o); err != nil {
			return nil, err
		}
	}
	f := &Factory{
		registry: registry,
		access:   entityaccess.New(),
		policy:   o.policy,
		logger:   o.logger,
	}
	if o.tracer != nil {
		drv = dialect.NewTraceDriver(drv, dialect.WithTracer(o.tracer))
	}
	if cfg.SlowQueryThreshold > 0 {
		f.stats = dialect.NewStatsDriver(drv,
			dialect.WithSlowThreshold(cfg.SlowQueryThreshold),
			dialect.WithSlowQueryHook(func(ctx context.Context, stmts []dialect.Statement, d time.Duration) {
				o.logger.WarnContext(ctx, "slow statement batch", "duration", d, "statements", len(stmts))
			}),
		)
		drv = f.stats
	}
	if cfg.Debug {
		drv = dialect.NewDebugDriver(drv, dialect.DebugWithLog(func(ctx context.Context, v ...any) {
			o.logger.InfoContext(ctx, fmt.Sprint(v...))
		}))
	}
	f.driver = drv
	o.logger.Debug("session factory ready", "dialect", drv.Dialect(), "classes", len(registry.Classes()))
	return f, nil
}

func openDriver(ctx context.Context, cfg *ogm.Config, o *factoryOptions) (dialect.Driver, error) {
	switch cfg.Dialect {
	case ogm.DialectMemory:
		return memory.Open(memory.WithLogger(o.logger)), nil
	case ogm.DialectHTTP, "":
		opts := []rest.Option{rest.WithLogger(o.logger)}
		if !cfg.Credentials.Empty() {
			opts = append(opts, rest.WithBasicAuth(cfg.Credentials.Username, cfg.Credentials.Password))
		}
		return rest.Open(cfg.EndpointBaseURL, append(opts, o.httpOptions...)...)
	case ogm.DialectBolt:
		opts := []bolt.Option{bolt.WithLogger(o.logger), bolt.WithDatabase(cfg.Database)}
		if !cfg.Credentials.Empty() {
			opts = append(opts, bolt.WithBasicAuth(cfg.Credentials.Username, cfg.Credentials.Password))
		}
		return bolt.Open(cfg.EndpointBaseURL, append(opts, o.boltOptions...)...)
	case ogm.DialectSQLite, ogm.DialectPostgres, ogm.DialectPgx, ogm.DialectMySQL:
		drv, err := sql.Open(cfg.Dialect, cfg.DSN, sql.WithLogger(o.logger))
		if err != nil {
			return nil, fmt.Errorf("session: open %s: %w", cfg.Dialect, err)
		}
		if err := drv.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("session: %w", errors.Join(err, drv.Close()))
		}
		return drv, nil
	}
	return nil, fmt.Errorf("session: unsupported dialect %q", cfg.Dialect)
}

// Registry returns the metadata registry.
func (f *Factory) Registry() *metadata.Registry { return f.registry }

// Driver returns the transport, including its decorators.
func (f *Factory) Driver() dialect.Driver { return f.driver }

// QueryStats returns the transport statistics, or nil when no slow query
// threshold is configured.
func (f *Factory) QueryStats() *dialect.QueryStats {
	if f.stats == nil {
		return nil
	}
	return f.stats.QueryStats()
}

// StatsCollector returns a Prometheus collector over the transport
// statistics, or nil when no slow query threshold is configured.
func (f *Factory) StatsCollector() *dialect.StatsCollector {
	if f.stats == nil {
		return nil
	}
	return dialect.NewStatsCollector(f.stats)
}

// Close closes the transport.
func (f *Factory) Close() error {
	return f.driver.Close()
}
