package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/syssam/ogm"
	"github.com/syssam/ogm/dialect"
	"github.com/syssam/ogm/dialect/graphop"
)

const scheme = "sql://tx/"

// savepoint isolates each batch of an explicit transaction, so a failed
// batch leaves the transaction as it was.
const savepoint = "ogm_batch"

// Driver is a dialect.Driver storing the graph in a relational database.
type Driver struct {
	db      *sql.DB
	dialect string
	logger  *slog.Logger

	mu  sync.Mutex
	txs map[string]*sql.Tx
}

// Option configures the Driver.
type Option func(*Driver)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = l
	}
}

// Open wraps the database/sql.Open method and returns a graph driver.
// driverName is the database/sql driver: sqlite, postgres, pgx or mysql.
// The driver must be registered by the caller.
func Open(driverName, source string, opts ...Option) (*Driver, error) {
	db, err := sql.Open(driverName, source)
	if err != nil {
		return nil, err
	}
	return OpenDB(driverName, db, opts...), nil
}

// OpenDB wraps the given database/sql.DB with a graph driver.
func OpenDB(driverName string, db *sql.DB, opts ...Option) *Driver {
	d := &Driver{
		db:      db,
		dialect: driverName,
		logger:  slog.Default(),
		txs:     make(map[string]*sql.Tx),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DB returns the underlying *sql.DB instance.
func (d *Driver) DB() *sql.DB {
	return d.db
}

// Dialect implements dialect.Driver. Driver names such as pgx are reported
// by the SQL dialect they speak.
func (d *Driver) Dialect() string {
	if d.dialect == "pgx" {
		return dialect.Postgres
	}
	for _, name := range []string{dialect.MySQL, dialect.SQLite, dialect.Postgres} {
		if strings.HasPrefix(d.dialect, name) {
			return name
		}
	}
	return d.dialect
}

// Close rolls back open transactions and closes the database.
func (d *Driver) Close() error {
	d.mu.Lock()
	txs := d.txs
	d.txs = make(map[string]*sql.Tx)
	d.mu.Unlock()
	var errs []error
	for _, tx := range txs {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, err)
		}
	}
	return errors.Join(append(errs, d.db.Close())...)
}

// Begin implements dialect.Driver.
func (d *Driver) Begin(ctx context.Context, opts dialect.TxOptions) (dialect.Endpoint, error) {
	token := uuid.NewString()
	if opts.AutoCommit {
		return dialect.Endpoint{URL: scheme + token + "/commit", AutoCommit: true}, nil
	}
	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: opts.ReadOnly && d.Dialect() != dialect.SQLite})
	if err != nil {
		return dialect.Endpoint{}, ogm.NewRemoteExecutionError("begin", scheme+token, err)
	}
	d.mu.Lock()
	d.txs[token] = tx
	d.mu.Unlock()
	return dialect.Endpoint{URL: scheme + token}, nil
}

func (d *Driver) take(ep dialect.Endpoint, remove bool) (*sql.Tx, error) {
	token, ok := strings.CutPrefix(ep.URL, scheme)
	if !ok {
		return nil, fmt.Errorf("%w: %s", dialect.ErrUnknownEndpoint, ep)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	tx, ok := d.txs[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dialect.ErrUnknownEndpoint, ep)
	}
	if remove {
		delete(d.txs, token)
	}
	return tx, nil
}

// Execute implements dialect.Driver. Single-shot batches run in their own
// database transaction.
func (d *Driver) Execute(ctx context.Context, ep dialect.Endpoint, stmts []dialect.Statement) ([]dialect.Result, error) {
	if ep.SingleShot() {
		res, err := d.executeOnce(ctx, stmts)
		if err != nil {
			return nil, ogm.NewRemoteExecutionError("execute", ep.URL, err)
		}
		return res, nil
	}
	tx, err := d.take(ep, false)
	if err != nil {
		return nil, err
	}
	c := Conn{tx, d.Dialect()}
	if _, err := c.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
		return nil, ogm.NewRemoteExecutionError("execute", ep.URL, err)
	}
	res, err := graphop.Run(ctx, &Store{c}, stmts)
	if err != nil {
		for _, q := range []string{"ROLLBACK TO SAVEPOINT ", "RELEASE SAVEPOINT "} {
			if _, rerr := c.Exec(ctx, q+savepoint); rerr != nil {
				err = errors.Join(err, rerr)
				break
			}
		}
		return nil, ogm.NewRemoteExecutionError("execute", ep.URL, err)
	}
	if _, err := c.Exec(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return nil, ogm.NewRemoteExecutionError("execute", ep.URL, err)
	}
	return res, nil
}

func (d *Driver) executeOnce(ctx context.Context, stmts []dialect.Statement) ([]dialect.Result, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	res, err := graphop.Run(ctx, NewStore(d.Dialect(), tx), stmts)
	if err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

// Commit implements dialect.Driver.
func (d *Driver) Commit(_ context.Context, ep dialect.Endpoint) error {
	if ep.SingleShot() {
		return nil
	}
	tx, err := d.take(ep, true)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return ogm.NewRemoteExecutionError("commit", ep.URL, err)
	}
	d.logger.Debug("sql transaction committed", "endpoint", ep.URL)
	return nil
}

// Rollback implements dialect.Driver.
func (d *Driver) Rollback(_ context.Context, ep dialect.Endpoint) error {
	if ep.SingleShot() {
		return nil
	}
	tx, err := d.take(ep, true)
	if err != nil {
		return err
	}
	if err := tx.Rollback(); err != nil {
		return ogm.NewRemoteExecutionError("rollback", ep.URL, err)
	}
	return nil
}

var _ dialect.Driver = (*Driver)(nil)
