// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"codeberg.org/oliverandrich/qr-checkin/internal/repository"
	"codeberg.org/oliverandrich/qr-checkin/internal/testutil"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
)

func TestNew(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	assert.NotNil(t, repo)
	assert.NotNil(t, repo.DB())
	assert.False(t, repo.InTx())
}

func TestWithTx_Commit(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	err := repo.WithTx(ctx, func(tx *repository.Repository) error {
		assert.True(t, tx.InTx())
		_, err := tx.CreateIssuedToken(ctx, "owner-1", "committed", time.Now().UTC())
		return err
	})
	require.NoError(t, err)

	_, err = repo.GetIssuedToken(ctx, "committed")
	assert.NoError(t, err)
}

func TestWithTx_RollbackOnError(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.WithTx(ctx, func(tx *repository.Repository) error {
		if _, err := tx.CreateIssuedToken(ctx, "owner-1", "rolled-back", time.Now().UTC()); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = repo.GetIssuedToken(ctx, "rolled-back")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestWithTx_RollbackOnCancel(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := repo.WithTx(ctx, func(tx *repository.Repository) error {
		if _, err := tx.CreateIssuedToken(ctx, "owner-1", "cancelled", time.Now().UTC()); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.Error(t, err)

	_, err = repo.GetIssuedToken(context.Background(), "cancelled")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestWithTx_Nested(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	err := repo.WithTx(ctx, func(tx *repository.Repository) error {
		return tx.WithTx(ctx, func(inner *repository.Repository) error {
			assert.Same(t, tx, inner)
			return nil
		})
	})

	assert.NoError(t, err)
}

func TestWithTx_PanicRollsBack(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = repo.WithTx(ctx, func(tx *repository.Repository) error {
			_, _ = tx.CreateIssuedToken(ctx, "owner-1", "panicked", time.Now().UTC())
			panic("boom")
		})
	})

	_, err := repo.GetIssuedToken(ctx, "panicked")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func newMockRepo(t *testing.T) (*repository.Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = mockDB.Close()
	})
	return repository.New(sqlx.NewDb(mockDB, "sqlite")), mock
}

func TestConsumeIssuedToken_StoreError(t *testing.T) {
	repo, mock := newMockRepo(t)
	storeErr := errors.New("disk I/O error")
	mock.ExpectExec("UPDATE issued_tokens SET state").WillReturnError(storeErr)

	ok, err := repo.ConsumeIssuedToken(context.Background(), "tok", "7", time.Now())

	assert.False(t, ok)
	require.ErrorIs(t, err, storeErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachQRImage_NoRows(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE issued_tokens SET qr_png").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AttachQRImage(context.Background(), 42, []byte("png"))

	require.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_BeginError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	called := false
	err := repo.WithTx(context.Background(), func(*repository.Repository) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.False(t, called)
	assert.Contains(t, err.Error(), "begin transaction")
}

func TestWithTx_CommitError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("disk full"))

	err := repo.WithTx(context.Background(), func(*repository.Repository) error {
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}
