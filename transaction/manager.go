package transaction

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/syssam/ogm"
	"github.com/syssam/ogm/dialect"
	"github.com/syssam/ogm/mapping"
)

// Manager opens transactions for one unit of work and binds at most one
// explicit transaction at a time.
type Manager struct {
	driver     dialect.Driver
	ctx        *mapping.Context
	logger     *slog.Logger
	onCommit   []CommitHook
	onRollback []RollbackHook

	mu      sync.Mutex
	current *Transaction
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger sets the logger of the manager and its transactions.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithCommitHooks installs hooks on every transaction the manager opens.
func WithCommitHooks(hooks ...CommitHook) Option {
	return func(m *Manager) {
		m.onCommit = append(m.onCommit, hooks...)
	}
}

// WithRollbackHooks installs hooks on every transaction the manager opens.
func WithRollbackHooks(hooks ...RollbackHook) Option {
	return func(m *Manager) {
		m.onRollback = append(m.onRollback, hooks...)
	}
}

// NewManager returns a manager opening transactions on drv that commit into
// ctx.
func NewManager(drv dialect.Driver, ctx *mapping.Context, opts ...Option) *Manager {
	m := &Manager{driver: drv, ctx: ctx, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin opens a transaction. An explicit transaction becomes the current
// one until it commits, rolls back or closes; Begin fails with
// ogm.ErrTxStarted while another one is current. Auto-commit transactions
// are never bound.
func (m *Manager) Begin(ctx context.Context, opts dialect.TxOptions) (*Transaction, error) {
	if !opts.AutoCommit {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.current != nil {
			return nil, ogm.ErrTxStarted
		}
	}
	id := uuid.NewString()
	ep, err := m.driver.Begin(ctx, opts)
	if err != nil {
		return nil, remoteError("begin", dialect.Endpoint{}, err)
	}
	tx := &Transaction{
		id:         id,
		endpoint:   ep,
		driver:     m.driver,
		ctx:        m.ctx,
		logger:     m.logger,
		onCommit:   append([]CommitHook(nil), m.onCommit...),
		onRollback: append([]RollbackHook(nil), m.onRollback...),
	}
	if !opts.AutoCommit {
		tx.release = m.release
		m.current = tx
	}
	m.logger.Debug("transaction started", "tx", id, "endpoint", ep.URL, "auto_commit", ep.SingleShot())
	return tx, nil
}

// Current returns the bound transaction, if any.
func (m *Manager) Current() (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.current != nil
}

// Context returns the mapping context transactions commit into.
func (m *Manager) Context() *mapping.Context { return m.ctx }

// Driver returns the transport.
func (m *Manager) Driver() dialect.Driver { return m.driver }

func (m *Manager) release(tx *Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == tx {
		m.current = nil
	}
}
