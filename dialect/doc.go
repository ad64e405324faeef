// Package dialect defines the transport contract between the mapper and a
// graph store, and the decorators shared by every transport.
//
// # Driver Interface
//
// A Driver opens remote transactions and runs statement batches in them:
//
//	type Driver interface {
//	    Begin(ctx context.Context, opts TxOptions) (Endpoint, error)
//	    Execute(ctx context.Context, ep Endpoint, stmts []Statement) ([]Result, error)
//	    Commit(ctx context.Context, ep Endpoint) error
//	    Rollback(ctx context.Context, ep Endpoint) error
//	    Dialect() string
//	    Close() error
//	}
//
// An Endpoint is an opaque locator. Endpoints opened with
// TxOptions{AutoCommit: true}, or whose URL ends in /commit, are single-shot:
// Execute commits, and Commit and Rollback do nothing.
//
// # Statements
//
// Every Statement carries Cypher text for transports that speak Cypher and a
// structured Op for transports that interpret operations. A statement that
// creates a node names the new identity in Returns; later statements of the
// same batch use a Ref with that name and the transport substitutes the
// identity before running them.
//
// # Transports
//
//   - dialect/memory: an in-process graph, cloned on begin
//   - dialect/rest: the Neo4j transactional HTTP endpoint
//   - dialect/bolt: Neo4j over the Bolt protocol
//   - dialect/sql: nodes and relationships tables on SQLite, PostgreSQL or MySQL
//
// # Decorators
//
// StatsDriver counts statements and reports slow batches, DebugDriver logs
// every call, TraceDriver records OpenTelemetry spans and StatsCollector
// exports a StatsDriver's counters to Prometheus:
//
//	drv := dialect.NewStatsDriver(memory.NewDriver(),
//	    dialect.WithSlowThreshold(200*time.Millisecond),
//	    dialect.WithSlowQueryLog(),
//	)
//	prometheus.MustRegister(dialect.NewStatsCollector(drv))
package dialect
