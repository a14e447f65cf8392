package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/querykit/pkg/rows"
)

func TestRunInTx_RoutesThroughTransaction(t *testing.T) {
	tx := &fakeDB{}
	var opened int
	db := &fakeDB{
		TransactionFunc: func(ctx context.Context, fn func(ctx context.Context, tx Querier) error) error {
			opened++
			return fn(ctx, tx)
		},
	}
	repo := New(db, testTeam)

	err := RunInTx(context.Background(), db, func(ctx context.Context) error {
		assert.True(t, InTx(ctx, db))
		_, err := repo.GetEntities(ctx, Options{})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, opened)
	assert.Len(t, tx.recorded(), 1)
	assert.Empty(t, db.recorded())
}

func TestRunInTx_NestedJoinsOuter(t *testing.T) {
	var opened int
	db := &fakeDB{}
	db.TransactionFunc = func(ctx context.Context, fn func(ctx context.Context, tx Querier) error) error {
		opened++
		return fn(ctx, &fakeDB{})
	}

	err := RunInTx(context.Background(), db, func(ctx context.Context) error {
		return RunInTx(ctx, db, func(ctx context.Context) error {
			assert.True(t, InTx(ctx, db))
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, opened)
}

func TestRunInTx_OtherDatabaseUsesItsOwnQuerier(t *testing.T) {
	first := &fakeDB{}
	second := &fakeDB{}
	repo := New(second, testTeam)

	err := RunInTx(context.Background(), first, func(ctx context.Context) error {
		assert.False(t, InTx(ctx, second))
		_, err := repo.GetEntities(ctx, Options{})
		return err
	})
	require.NoError(t, err)
	assert.Len(t, second.recorded(), 1)
}

func TestRunInTx_PropagatesError(t *testing.T) {
	db := &fakeDB{}
	err := RunInTx(context.Background(), db, func(context.Context) error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)
}

func TestSerialQuerier_Concurrent(t *testing.T) {
	tx := &fakeDB{
		FetchAllFunc: func(context.Context, string, ...any) ([]rows.Row, error) { return nil, nil },
	}
	db := &fakeDB{
		TransactionFunc: func(ctx context.Context, fn func(ctx context.Context, tx Querier) error) error {
			return fn(ctx, tx)
		},
	}
	repo := New(db, testTeam)

	err := RunInTx(context.Background(), db, func(ctx context.Context) error {
		_, _, err := repo.GetEntitiesWithCount(ctx, Options{})
		return err
	})
	require.NoError(t, err)
	assert.Len(t, tx.recorded(), 2)
}
