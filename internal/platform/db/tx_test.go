package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeBeginner struct {
	opts []pgx.TxOptions
	txs  []*fakeTx
}

func (b *fakeBeginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = append(b.opts, opts)
	tx := &fakeTx{}
	b.txs = append(b.txs, tx)
	return tx, nil
}

func TestWithTxUsesReadCommitted(t *testing.T) {
	conn := &fakeBeginner{}
	err := withTx(context.Background(), conn, func(context.Context, pgx.Tx) error { return nil })
	require.NoError(t, err)
	require.Len(t, conn.opts, 1)
	require.Equal(t, pgx.ReadCommitted, conn.opts[0].IsoLevel)
	require.True(t, conn.txs[0].committed)
}

func TestWithTxRetriesDeadlocks(t *testing.T) {
	conn := &fakeBeginner{}
	calls := 0
	err := withTx(context.Background(), conn, func(context.Context, pgx.Tx) error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: codeDeadlockDetected}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.True(t, conn.txs[0].rolledBack)
	require.True(t, conn.txs[1].committed)
}

func TestWithTxReportsContentionAfterLastAttempt(t *testing.T) {
	conn := &fakeBeginner{}
	err := withTx(context.Background(), conn, func(context.Context, pgx.Tx) error {
		return &pgconn.PgError{Code: codeSerializationFailure}
	})
	require.ErrorIs(t, err, ErrContention)
	require.True(t, IsRetryable(err))
	require.Len(t, conn.txs, maxTxAttempts)
}

func TestWithTxDoesNotRetryOtherErrors(t *testing.T) {
	conn := &fakeBeginner{}
	boom := errors.New("boom")
	err := withTx(context.Background(), conn, func(context.Context, pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrContention)
	require.Len(t, conn.txs, 1)
}

func TestErrorClassification(t *testing.T) {
	wrap := func(code string) error {
		return fmt.Errorf("repo: %w", &pgconn.PgError{Code: code})
	}
	require.True(t, IsUniqueViolation(wrap(codeUniqueViolation)))
	require.True(t, IsForeignKeyViolation(wrap(codeForeignKeyViolation)))
	require.True(t, IsRetryable(wrap(codeSerializationFailure)))
	require.True(t, IsRetryable(wrap(codeDeadlockDetected)))

	require.False(t, IsRetryable(wrap(codeUniqueViolation)))
	require.False(t, IsUniqueViolation(errors.New("23505")))
	require.False(t, IsRetryable(nil))
}
