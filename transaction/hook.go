package transaction

import "context"

// Committer is the interface that wraps the Commit method.
type Committer interface {
	Commit(context.Context, *Transaction) error
}

// CommitFunc is an adapter to allow the use of ordinary function as Committer.
type CommitFunc func(context.Context, *Transaction) error

// Commit calls f(ctx, tx).
func (f CommitFunc) Commit(ctx context.Context, tx *Transaction) error {
	return f(ctx, tx)
}

// CommitHook defines the "commit middleware". A function that gets a
// Committer and returns a Committer.
type CommitHook func(Committer) Committer

// Rollbacker is the interface that wraps the Rollback method.
type Rollbacker interface {
	Rollback(context.Context, *Transaction) error
}

// RollbackFunc is an adapter to allow the use of ordinary function as Rollbacker.
type RollbackFunc func(context.Context, *Transaction) error

// Rollback calls f(ctx, tx).
func (f RollbackFunc) Rollback(ctx context.Context, tx *Transaction) error {
	return f(ctx, tx)
}

// RollbackHook defines the "rollback middleware". A function that gets a
// Rollbacker and returns a Rollbacker.
type RollbackHook func(Rollbacker) Rollbacker

// AfterRollback returns a hook calling fn once the remote rollback returned,
// successfully or not, while the pending logs are still attached.
func AfterRollback(fn func(context.Context, *Transaction) error) RollbackHook {
	return func(next Rollbacker) Rollbacker {
		return RollbackFunc(func(ctx context.Context, tx *Transaction) error {
			err := next.Rollback(ctx, tx)
			if herr := fn(ctx, tx); herr != nil && err == nil {
				err = herr
			}
			return err
		})
	}
}
