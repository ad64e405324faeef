// Package bolt implements the transport for graph servers speaking the Bolt
// protocol, on top of the official Neo4j driver. Explicit transactions are
// held by the transport and addressed by endpoint.
package bolt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/syssam/ogm"
	"github.com/syssam/ogm/dialect"
)

const scheme = "bolt://tx/"

// Driver is a dialect.Driver over a Neo4j driver.
type Driver struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
	// open starts a session; it is replaced in tests.
	open func(ctx context.Context, readOnly bool) session

	mu  sync.Mutex
	txs map[string]*tx
}

type tx struct {
	session session
	tx      explicitTx
}

// cursor is the part of a Neo4j result the transport reads.
type cursor interface {
	Keys() ([]string, error)
	Collect(ctx context.Context) ([]*neo4j.Record, error)
}

// runner is the part of a transaction statements run on.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (cursor, error)
}

// explicitTx is an open explicit transaction.
type explicitTx interface {
	runner
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// session is the part of a Neo4j session the transport uses.
type session interface {
	BeginTransaction(ctx context.Context) (explicitTx, error)
	ExecuteWrite(ctx context.Context, work func(runner) (any, error)) (any, error)
	Close(ctx context.Context) error
}

// neo4jSession adapts neo4j.SessionWithContext to session.
type neo4jSession struct{ s neo4j.SessionWithContext }

func (n neo4jSession) BeginTransaction(ctx context.Context) (explicitTx, error) {
	etx, err := n.s.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}
	return neo4jTx{etx}, nil
}

func (n neo4jSession) ExecuteWrite(ctx context.Context, work func(runner) (any, error)) (any, error) {
	return n.s.ExecuteWrite(ctx, func(mtx neo4j.ManagedTransaction) (any, error) {
		return work(neo4jRunner{mtx})
	})
}

func (n neo4jSession) Close(ctx context.Context) error { return n.s.Close(ctx) }

type neo4jRunner struct {
	r interface {
		Run(ctx context.Context, cypher string, params map[string]any) (neo4j.ResultWithContext, error)
	}
}

func (n neo4jRunner) Run(ctx context.Context, cypher string, params map[string]any) (cursor, error) {
	res, err := n.r.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return res, nil
}

type neo4jTx struct{ tx neo4j.ExplicitTransaction }

func (n neo4jTx) Run(ctx context.Context, cypher string, params map[string]any) (cursor, error) {
	return neo4jRunner{n.tx}.Run(ctx, cypher, params)
}

func (n neo4jTx) Commit(ctx context.Context) error   { return n.tx.Commit(ctx) }
func (n neo4jTx) Rollback(ctx context.Context) error { return n.tx.Rollback(ctx) }

type options struct {
	username, password string
	database           string
	logger             *slog.Logger
	configure          []func(*neo4j.Config)
}

// Option configures the Driver.
type Option func(*options)

// WithBasicAuth authenticates the connection.
func WithBasicAuth(username, password string) Option {
	return func(o *options) {
		o.username, o.password = username, password
	}
}

// WithDatabase selects the database sessions run against.
func WithDatabase(name string) Option {
	return func(o *options) {
		o.database = name
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithConfig tunes the underlying Neo4j driver.
func WithConfig(fn func(*neo4j.Config)) Option {
	return func(o *options) {
		o.configure = append(o.configure, fn)
	}
}

// Open connects to the server at uri, e.g. "neo4j://localhost:7687".
func Open(uri string, opts ...Option) (*Driver, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	auth := neo4j.NoAuth()
	if o.username != "" {
		auth = neo4j.BasicAuth(o.username, o.password, "")
	}
	drv, err := neo4j.NewDriverWithContext(uri, auth, o.configure...)
	if err != nil {
		return nil, fmt.Errorf("dialect/bolt: %w", err)
	}
	d := &Driver{
		driver:   drv,
		database: o.database,
		logger:   o.logger,
		txs:      make(map[string]*tx),
	}
	d.open = func(ctx context.Context, readOnly bool) session {
		mode := neo4j.AccessModeWrite
		if readOnly {
			mode = neo4j.AccessModeRead
		}
		return neo4jSession{drv.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: d.database})}
	}
	return d, nil
}

// Dialect implements dialect.Driver.
func (*Driver) Dialect() string { return dialect.Bolt }

// Ping verifies the server is reachable.
func (d *Driver) Ping(ctx context.Context) error {
	return d.driver.VerifyConnectivity(ctx)
}

// Close closes open transactions and the underlying driver.
func (d *Driver) Close() error {
	ctx := context.Background()
	d.mu.Lock()
	txs := d.txs
	d.txs = make(map[string]*tx)
	d.mu.Unlock()
	for token, t := range txs {
		if err := t.tx.Rollback(ctx); err != nil {
			d.logger.Warn("bolt transaction rollback on close failed", "endpoint", scheme+token, "error", err)
		}
		_ = t.session.Close(ctx)
	}
	if d.driver == nil {
		return nil
	}
	return d.driver.Close(ctx)
}

// Begin implements dialect.Driver.
func (d *Driver) Begin(ctx context.Context, opts dialect.TxOptions) (dialect.Endpoint, error) {
	token := uuid.NewString()
	if opts.AutoCommit {
		return dialect.Endpoint{URL: scheme + token + "/commit", AutoCommit: true}, nil
	}
	s := d.open(ctx, opts.ReadOnly)
	etx, err := s.BeginTransaction(ctx)
	if err != nil {
		_ = s.Close(ctx)
		return dialect.Endpoint{}, ogm.NewRemoteExecutionError("begin", scheme+token, err)
	}
	d.mu.Lock()
	d.txs[token] = &tx{session: s, tx: etx}
	d.mu.Unlock()
	return dialect.Endpoint{URL: scheme + token}, nil
}

// take returns the transaction of ep; remove drops it from the open set.
func (d *Driver) take(ep dialect.Endpoint, remove bool) (*tx, error) {
	token, ok := strings.CutPrefix(ep.URL, scheme)
	if !ok {
		return nil, fmt.Errorf("%w: %s", dialect.ErrUnknownEndpoint, ep)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.txs[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dialect.ErrUnknownEndpoint, ep)
	}
	if remove {
		delete(d.txs, token)
	}
	return t, nil
}

// Execute implements dialect.Driver. Single-shot batches run in a managed
// write transaction, retried by the driver on transient failures.
func (d *Driver) Execute(ctx context.Context, ep dialect.Endpoint, stmts []dialect.Statement) ([]dialect.Result, error) {
	if ep.SingleShot() {
		s := d.open(ctx, false)
		defer s.Close(ctx)
		out, err := s.ExecuteWrite(ctx, func(r runner) (any, error) {
			return run(ctx, r, stmts)
		})
		if err != nil {
			return nil, ogm.NewRemoteExecutionError("execute", ep.URL, err)
		}
		return out.([]dialect.Result), nil
	}
	t, err := d.take(ep, false)
	if err != nil {
		return nil, err
	}
	res, err := run(ctx, t.tx, stmts)
	if err != nil {
		return nil, ogm.NewRemoteExecutionError("execute", ep.URL, err)
	}
	return res, nil
}

// Commit implements dialect.Driver.
func (d *Driver) Commit(ctx context.Context, ep dialect.Endpoint) error {
	if ep.SingleShot() {
		return nil
	}
	t, err := d.take(ep, true)
	if err != nil {
		return err
	}
	defer t.session.Close(ctx)
	if err := t.tx.Commit(ctx); err != nil {
		return ogm.NewRemoteExecutionError("commit", ep.URL, err)
	}
	return nil
}

// Rollback implements dialect.Driver.
func (d *Driver) Rollback(ctx context.Context, ep dialect.Endpoint) error {
	if ep.SingleShot() {
		return nil
	}
	t, err := d.take(ep, true)
	if err != nil {
		return err
	}
	defer t.session.Close(ctx)
	if err := t.tx.Rollback(ctx); err != nil {
		return ogm.NewRemoteExecutionError("rollback", ep.URL, err)
	}
	return nil
}

func run(ctx context.Context, r runner, stmts []dialect.Statement) ([]dialect.Result, error) {
	ids := make(map[dialect.Ref]int64)
	results := make([]dialect.Result, 0, len(stmts))
	for i, s := range stmts {
		params, err := dialect.Bind(s.Params, ids)
		if err != nil {
			return nil, err
		}
		cur, err := r.Run(ctx, s.Cypher, params)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		keys, err := cur.Keys()
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		records, err := cur.Collect(ctx)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		res := convert(keys, records)
		if s.Returns != "" {
			ids[s.Returns] = res.ID
		}
		results = append(results, res)
	}
	return results, nil
}

var _ dialect.Driver = (*Driver)(nil)
