package cpqlorm

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func setupTransactionDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT);`)
	require.NoError(t, err)
	return db
}

func newTransactionTestManager(db *sql.DB) *EntityManager {
	registry := NewRegistry()
	built, _ := registry.Build()
	return NewEntityManager(built, db, Dialects.SQLite)
}

func TestRunInTransactionCommitsOnSuccess(t *testing.T) {
	db := setupTransactionDB(t)
	defer db.Close()

	m := newTransactionTestManager(db)
	err := m.runInTransaction(context.Background(), sql.LevelDefault, func(ctx context.Context) error {
		_, execErr := m.tx.Exec("INSERT INTO widgets (name) VALUES (?)", "gear")
		return execErr
	})
	require.NoError(t, err)
	require.Nil(t, m.tx)

	var count int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM widgets").Scan(&count))
	require.Equal(t, 1, count)
}

func TestRunInTransactionRollsBackOnError(t *testing.T) {
	db := setupTransactionDB(t)
	defer db.Close()

	m := newTransactionTestManager(db)
	sentinel := errors.New("boom")
	err := m.runInTransaction(context.Background(), sql.LevelDefault, func(ctx context.Context) error {
		_, execErr := m.tx.Exec("INSERT INTO widgets (name) VALUES (?)", "gear")
		require.NoError(t, execErr)
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Nil(t, m.tx)

	var count int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM widgets").Scan(&count))
	require.Zero(t, count)
}

func TestRunInTransactionRePanicsAfterRollback(t *testing.T) {
	db := setupTransactionDB(t)
	defer db.Close()

	m := newTransactionTestManager(db)
	require.Panics(t, func() {
		_ = m.runInTransaction(context.Background(), sql.LevelDefault, func(ctx context.Context) error {
			_, _ = m.tx.Exec("INSERT INTO widgets (name) VALUES (?)", "gear")
			panic("unexpected failure")
		})
	})
	require.Nil(t, m.tx)

	var count int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM widgets").Scan(&count))
	require.Zero(t, count)
}

func TestRunInTransactionOnNilDBReturnsConnDone(t *testing.T) {
	m := newTransactionTestManager(nil)
	err := m.runInTransaction(context.Background(), sql.LevelDefault, func(ctx context.Context) error {
		return nil
	})
	require.ErrorIs(t, err, sql.ErrConnDone)
}

func TestRunInTransactionRejectsNestedTransaction(t *testing.T) {
	db := setupTransactionDB(t)
	defer db.Close()

	m := newTransactionTestManager(db)
	require.NoError(t, m.BeginTransaction(context.Background()))
	defer m.Rollback()

	err := m.runInTransaction(context.Background(), sql.LevelDefault, func(ctx context.Context) error {
		return nil
	})
	require.Error(t, err)
}
