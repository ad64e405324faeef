package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/syssam/ogm"
	"github.com/syssam/ogm/changelog"
	"github.com/syssam/ogm/dialect"
	"github.com/syssam/ogm/mapping"
)

// Status is the state of a Transaction.
type Status uint8

// Transaction states.
const (
	Open Status = iota
	Pending
	RolledBack
	Committed
	Closed
)

// String returns the state name.
func (s Status) String() string {
	switch s {
	case Open:
		return "OPEN"
	case Pending:
		return "PENDING"
	case RolledBack:
		return "ROLLEDBACK"
	case Committed:
		return "COMMITTED"
	case Closed:
		return "CLOSED"
	}
	return fmt.Sprintf("Status(%d)", s)
}

// Active reports whether work can still be added in this state.
func (s Status) Active() bool {
	return s == Open || s == Pending
}

// Transaction is one remote transaction and the change logs sent through it
// that await commit. A Transaction is not safe for concurrent use.
type Transaction struct {
	id       string
	endpoint dialect.Endpoint
	driver   dialect.Driver
	ctx      *mapping.Context
	logger   *slog.Logger
	release  func(*Transaction)

	status      Status
	remote      remoteState
	logs        []*changelog.ChangeLog
	onCommit    []CommitHook
	onRollback  []RollbackHook
	rollbackErr error
}

// remoteState records how far the remote transaction got inside the hook
// chain of Commit or Rollback.
type remoteState uint8

const (
	remoteActive remoteState = iota
	remoteCommitted
	remoteRolledBack
)

// ID returns the handle identifier.
func (tx *Transaction) ID() string { return tx.id }

// Endpoint returns the remote endpoint of the transaction.
func (tx *Transaction) Endpoint() dialect.Endpoint { return tx.endpoint }

// Status returns the current state.
func (tx *Transaction) Status() Status { return tx.status }

// AutoCommit reports whether the transaction commits on its first append.
func (tx *Transaction) AutoCommit() bool { return tx.endpoint.SingleShot() }

// Logs returns the appended, uncommitted change logs.
func (tx *Transaction) Logs() []*changelog.ChangeLog {
	return slices.Clone(tx.logs)
}

// RollbackErr returns the failure of the rollback attempted by Close, if any.
func (tx *Transaction) RollbackErr() error { return tx.rollbackErr }

// OnCommit adds hooks wrapping the commit of the transaction.
func (tx *Transaction) OnCommit(hooks ...CommitHook) {
	tx.onCommit = append(tx.onCommit, hooks...)
}

// OnRollback adds hooks wrapping the rollback of the transaction.
func (tx *Transaction) OnRollback(hooks ...RollbackHook) {
	tx.onRollback = append(tx.onRollback, hooks...)
}

// View returns the relationships of the mapping context with the pending
// logs applied, the state a save in this transaction reconciles against.
func (tx *Transaction) View() mapping.RelationshipView {
	if len(tx.logs) == 0 {
		return tx.ctx
	}
	return mapping.NewOverlay(tx.ctx, tx.logs...)
}

// Execute runs statements in the transaction. Transport failures are
// returned as *ogm.RemoteExecutionError.
func (tx *Transaction) Execute(ctx context.Context, stmts []dialect.Statement) ([]dialect.Result, error) {
	if !tx.status.Active() {
		return nil, ogm.NewTransactionClosedError(tx.id, tx.status.String())
	}
	if len(stmts) == 0 {
		return nil, nil
	}
	res, err := tx.driver.Execute(ctx, tx.endpoint, stmts)
	if err != nil {
		return nil, remoteError("execute", tx.endpoint, err)
	}
	return res, nil
}

// Append adds a change log whose statements were executed in the
// transaction. The log must be bound. An auto-commit transaction commits
// right away.
func (tx *Transaction) Append(ctx context.Context, log *changelog.ChangeLog) error {
	if !tx.status.Active() {
		return ogm.NewTransactionClosedError(tx.id, tx.status.String())
	}
	if !log.Resolved() {
		return fmt.Errorf("transaction: append to %s: change log has unbound references", tx.id)
	}
	tx.logs = append(tx.logs, log)
	tx.status = Pending
	if tx.AutoCommit() {
		return tx.Commit(ctx)
	}
	return nil
}

// Commit commits the remote transaction and synchronizes the appended logs
// into the mapping context. It is legal only while the transaction is OPEN
// or PENDING. A failed remote commit, or a hook vetoing before it, leaves
// the state and the context as they were, so the transaction can still be
// rolled back or closed. Once the remote side committed, the transaction is
// COMMITTED even if a hook reports an error afterwards.
func (tx *Transaction) Commit(ctx context.Context) error {
	if !tx.status.Active() {
		return ogm.NewTransactionStateError(tx.id, "commit", tx.status.String())
	}
	var c Committer = CommitFunc(commit)
	for i := len(tx.onCommit) - 1; i >= 0; i-- {
		c = tx.onCommit[i](c)
	}
	err := c.Commit(ctx, tx)
	if tx.remote != remoteCommitted {
		if err == nil {
			err = fmt.Errorf("transaction: commit of %s stopped by hook", tx.id)
		}
		return err
	}
	tx.logger.Debug("transaction committed", "tx", tx.id, "logs", len(tx.logs))
	tx.logs = nil
	tx.finish(Committed)
	return err
}

func commit(ctx context.Context, tx *Transaction) error {
	if err := tx.driver.Commit(ctx, tx.endpoint); err != nil {
		return remoteError("commit", tx.endpoint, err)
	}
	tx.remote = remoteCommitted
	if err := tx.ctx.Sync(tx.logs...); err != nil {
		// The remote side is committed; the context stays as it was.
		return fmt.Errorf("transaction: synchronize %s: %w", tx.id, err)
	}
	return nil
}

// Rollback rolls back the remote transaction and discards the appended logs
// without touching the mapping context. It is legal only while the
// transaction is OPEN or PENDING. Once the remote rollback was attempted the
// transaction is ROLLEDBACK, even when it failed; the failure is returned as
// an *ogm.RollbackError. A hook vetoing before the remote rollback leaves
// the state unchanged.
func (tx *Transaction) Rollback(ctx context.Context) error {
	if !tx.status.Active() {
		return ogm.NewTransactionStateError(tx.id, "rollback", tx.status.String())
	}
	var r Rollbacker = RollbackFunc(rollback)
	for i := len(tx.onRollback) - 1; i >= 0; i-- {
		r = tx.onRollback[i](r)
	}
	err := r.Rollback(ctx, tx)
	if tx.remote != remoteRolledBack {
		if err == nil {
			err = fmt.Errorf("transaction: rollback of %s stopped by hook", tx.id)
		}
		return &ogm.RollbackError{Err: err}
	}
	tx.logs = nil
	tx.finish(RolledBack)
	if err != nil {
		return &ogm.RollbackError{Err: err}
	}
	tx.logger.Debug("transaction rolled back", "tx", tx.id)
	return nil
}

func rollback(ctx context.Context, tx *Transaction) error {
	tx.remote = remoteRolledBack
	if err := tx.driver.Rollback(ctx, tx.endpoint); err != nil {
		return remoteError("rollback", tx.endpoint, err)
	}
	return nil
}

// Close ends the transaction. An OPEN or PENDING transaction is rolled back
// first; if that fails the error is logged and kept in RollbackErr, and the
// transaction is closed anyway. Close is idempotent.
func (tx *Transaction) Close(ctx context.Context) error {
	if tx.status == Closed {
		return nil
	}
	if tx.status.Active() {
		err := tx.Rollback(ctx)
		if tx.remote != remoteRolledBack {
			// A hook stopped the rollback; release the remote side anyway.
			err = errors.Join(err, rollback(ctx, tx))
			tx.logs = nil
		}
		if err != nil {
			tx.rollbackErr = err
			tx.logger.Error("implicit rollback failed", "tx", tx.id, "endpoint", tx.endpoint.URL, "error", err)
		}
	}
	tx.finish(Closed)
	return nil
}

func (tx *Transaction) finish(s Status) {
	if tx.status == Closed {
		return
	}
	tx.status = s
	if tx.release != nil {
		tx.release(tx)
		tx.release = nil
	}
}

func remoteError(op string, ep dialect.Endpoint, err error) error {
	if ogm.IsRemoteExecutionError(err) {
		return err
	}
	return ogm.NewRemoteExecutionError(op, ep.URL, err)
}
