package cpqlorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrRollbackFailed is returned when a transaction rollback itself fails.
var ErrRollbackFailed = errors.New("cpqlorm: rollback failed")

// runInTransaction is the entity manager's panic-safe unit-of-work
// boundary (spec.md §4.F). It opens a transaction on m's connection,
// runs fn with that transaction as the manager's current executor so
// any Persist/Merge/Remove calls fn makes queue against it, then closes
// the loop itself: on success it flushes the queued operations and
// commits, on error or panic it discards them and rolls back — "a flush
// that fails... inside a transaction, rollback reverses everything and
// re-throws" (spec.md §7). Unlike a bare BeginTransaction/Commit pair,
// callers never see a half-open manager: m.tx and the tracker's queue
// are always back to empty by the time runInTransaction returns, on
// every exit path.
func (m *EntityManager) runInTransaction(ctx context.Context, isolation sql.IsolationLevel, fn func(ctx context.Context) error) (err error) {
	if m.db == nil {
		return sql.ErrConnDone
	}
	if m.tx != nil {
		return fmt.Errorf("cpqlorm: transaction already open")
	}

	sqlTx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return err
	}
	m.tx = sqlTx

	defer func() {
		if p := recover(); p != nil {
			_ = m.tx.Rollback()
			m.tx = nil
			m.tracker.Clear()
			panic(p)
		}
	}()

	if err = fn(ctx); err != nil {
		if rbErr := m.tx.Rollback(); rbErr != nil {
			err = fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		m.tx = nil
		m.tracker.Clear()
		return err
	}

	if err = m.Flush(ctx); err != nil {
		if rbErr := m.tx.Rollback(); rbErr != nil {
			err = fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		m.tx = nil
		m.tracker.Clear()
		return err
	}

	err = m.tx.Commit()
	m.tx = nil
	return err
}
