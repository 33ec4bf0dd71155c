package memory

import (
	"context"
	"sync"
	"time"

	"github.com/kevin07696/checkout-aggregator/internal/domain"
	"github.com/kevin07696/checkout-aggregator/internal/domain/models"
	"github.com/kevin07696/checkout-aggregator/internal/domain/ports"
)

// TransactionRepository is an in-process implementation of the transaction
// store. Mutations on the same id are serialized by a per-record mutex, so
// the dispatched-flag check-and-set inside a mutator is race free. Used for
// development mode and tests; the postgres adapter is the deployed store.
type TransactionRepository struct {
	mu      sync.RWMutex
	records map[string]*record
}

type record struct {
	mu sync.Mutex
	tx models.Transaction
}

// NewTransactionRepository creates an empty in-memory store
func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{
		records: make(map[string]*record),
	}
}

// Create persists a new transaction
func (r *TransactionRepository) Create(_ context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[tx.ID]; exists {
		return domain.NewDomainError(domain.ErrorCodeDatabaseError, "transaction already exists").
			WithDetail("transaction_id", tx.ID)
	}
	r.records[tx.ID] = &record{tx: *tx}
	return nil
}

// GetByID retrieves a copy of the transaction with the given id
func (r *TransactionRepository) GetByID(_ context.Context, id string) (*models.Transaction, error) {
	r.mu.RLock()
	rec, ok := r.records[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrTxnNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	tx := rec.tx
	return &tx, nil
}

// Update atomically applies the mutator to the stored record
func (r *TransactionRepository) Update(_ context.Context, id string, fn ports.Mutator) (*models.Transaction, error) {
	r.mu.RLock()
	rec, ok := r.records[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrTxnNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	// Mutate a copy so a failing mutator leaves the stored record untouched
	tx := rec.tx
	if err := fn(&tx); err != nil {
		return nil, err
	}
	tx.UpdatedAt = time.Now()
	rec.tx = tx

	out := tx
	return &out, nil
}

var _ ports.TransactionRepository = (*TransactionRepository)(nil)
