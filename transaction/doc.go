// Package transaction models the lifecycle of one remote transaction.
//
// A Transaction moves through the states
//
//	OPEN → PENDING → {COMMITTED, ROLLEDBACK} → CLOSED
//
// Change logs appended to it are synchronized into the mapping context only
// when the remote commit succeeds. A Manager binds at most one open
// transaction per unit of work:
//
//	tx, err := m.Begin(ctx, dialect.TxOptions{})
//	if err != nil {
//		return err
//	}
//	defer tx.Close(ctx)
//	...
//	return tx.Commit(ctx)
//
// Commit and rollback behavior can be extended with hooks:
//
//	tx.OnCommit(func(next transaction.Committer) transaction.Committer {
//		return transaction.CommitFunc(func(ctx context.Context, tx *transaction.Transaction) error {
//			// Do something before.
//			if err := next.Commit(ctx, tx); err != nil {
//				return err
//			}
//			// Do something after.
//			return nil
//		})
//	})
package transaction
