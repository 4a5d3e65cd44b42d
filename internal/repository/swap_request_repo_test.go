package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"skill-swap/backend/internal/model"
	pkgerrors "skill-swap/backend/pkg/errors"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestSwapRequestRepo_Transition_Applied(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSwapRequestRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "swap_requests" SET .* WHERE \(?id = \$\d+ AND to_user_id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Transition(context.Background(), "req-1", "user-b", model.SwapStatusAccepted, time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSwapRequestRepo_Transition_Stale(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSwapRequestRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "swap_requests"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.Transition(context.Background(), "req-1", "user-b", model.SwapStatusRejected, time.Now())
	assert.True(t, errors.Is(err, pkgerrors.ErrStaleState), "期望 ErrStaleState，实际: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSwapRequestRepo_DeletePending_Stale(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSwapRequestRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "swap_requests" WHERE \(?id = \$\d+ AND from_user_id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.DeletePending(context.Background(), "req-1", "user-a")
	assert.ErrorIs(t, err, pkgerrors.ErrStaleState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSwapRequestRepo_ListForUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSwapRequestRepo(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "from_user_id", "from_user_name", "to_user_id", "to_user_name", "message", "status", "created_at", "updated_at"}).
		AddRow("req-2", "user-b", "Bob", "user-a", "Alice", "hello", "pending", now, now).
		AddRow("req-1", "user-a", "Alice", "user-b", "Bob", "hi", "accepted", now.Add(-time.Hour), now)

	mock.ExpectQuery(`SELECT \* FROM "swap_requests" WHERE \(?from_user_id = \$1 OR to_user_id = \$2\)? ORDER BY created_at DESC`).
		WithArgs("user-a", "user-a").
		WillReturnRows(rows)

	list, err := repo.ListForUser(context.Background(), "user-a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "req-2", list[0].ID)
	assert.Equal(t, model.SwapStatusAccepted, list[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSwapRequestRepo_ExistsPending(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSwapRequestRepo(db)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "swap_requests"`).
		WithArgs("user-a", "user-b", model.SwapStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ok, err := repo.ExistsPending(context.Background(), "user-a", "user-b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Transaction_WithoutDB(t *testing.T) {
	repo := &Repository{}
	called := false
	err := repo.Transaction(context.Background(), func(txRepo *Repository) error {
		called = true
		assert.Same(t, repo, txRepo)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}
