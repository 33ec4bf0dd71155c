package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/checkout-aggregator/internal/domain"
	"github.com/kevin07696/checkout-aggregator/internal/domain/models"
)

func newTestTransaction(id string) *models.Transaction {
	now := time.Now()
	return &models.Transaction{
		ID:       id,
		Provider: models.ProviderPhonePe,
		Amount:   decimal.NewFromInt(500),
		Customer: models.Customer{
			Name:  "Asha Rao",
			Email: "asha@example.com",
			Phone: "9876543210",
		},
		State:          models.StateInitiated,
		ProviderHandle: id,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := NewTransactionRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestTransaction("txn-1")))

	tx, err := repo.GetByID(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, "txn-1", tx.ID)
	assert.Equal(t, models.StateInitiated, tx.State)
}

func TestRepository_CreateDuplicate(t *testing.T) {
	repo := NewTransactionRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestTransaction("txn-1")))
	err := repo.Create(ctx, newTestTransaction("txn-1"))
	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeDatabaseError, domain.GetErrorCode(err))
}

func TestRepository_GetUnknown(t *testing.T) {
	repo := NewTransactionRepository()

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrTxnNotFound)
}

func TestRepository_UpdateUnknown(t *testing.T) {
	repo := NewTransactionRepository()

	_, err := repo.Update(context.Background(), "missing", func(tx *models.Transaction) error {
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrTxnNotFound)
}

func TestRepository_FailedMutatorLeavesRecordUntouched(t *testing.T) {
	repo := NewTransactionRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newTestTransaction("txn-1")))

	_, err := repo.Update(ctx, "txn-1", func(tx *models.Transaction) error {
		tx.State = models.StateFailed
		return errors.New("mutator rejected")
	})
	require.Error(t, err)

	tx, err := repo.GetByID(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateInitiated, tx.State)
}

func TestRepository_GetReturnsCopy(t *testing.T) {
	repo := NewTransactionRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newTestTransaction("txn-1")))

	tx, err := repo.GetByID(ctx, "txn-1")
	require.NoError(t, err)
	tx.State = models.StateFailed

	fresh, err := repo.GetByID(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateInitiated, fresh.State)
}

// Concurrent check-and-set mutations on one record must serialize: with N
// racing updates, exactly one observes the flag unset.
func TestRepository_UpdateSerializesPerRecord(t *testing.T) {
	repo := NewTransactionRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newTestTransaction("txn-1")))

	const workers = 16
	var wins int64
	var winsMu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, "txn-1", func(tx *models.Transaction) error {
				if !tx.SideEffectsDispatched {
					tx.SideEffectsDispatched = true
					winsMu.Lock()
					wins++
					winsMu.Unlock()
				}
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	winsMu.Lock()
	defer winsMu.Unlock()
	assert.Equal(t, int64(1), wins)
}

func TestRepository_UpdateDistinctRecordsDoNotBlock(t *testing.T) {
	repo := NewTransactionRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newTestTransaction("txn-1")))
	require.NoError(t, repo.Create(ctx, newTestTransaction("txn-2")))

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := repo.Update(ctx, "txn-1", func(tx *models.Transaction) error {
			close(entered)
			<-release
			return nil
		})
		assert.NoError(t, err)
	}()

	// While txn-1's mutator is parked, txn-2 must still be mutable.
	<-entered
	_, err := repo.Update(ctx, "txn-2", func(tx *models.Transaction) error {
		tx.State = models.StatePendingVerification
		return nil
	})
	require.NoError(t, err)

	close(release)
	<-done
}

func TestRepository_UpdateBumpsUpdatedAt(t *testing.T) {
	repo := NewTransactionRepository()
	ctx := context.Background()
	tx := newTestTransaction("txn-1")
	tx.UpdatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, repo.Create(ctx, tx))

	updated, err := repo.Update(ctx, "txn-1", func(tx *models.Transaction) error {
		tx.State = models.StatePendingVerification
		return nil
	})
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(tx.UpdatedAt))
}
