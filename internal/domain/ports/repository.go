package ports

import (
	"context"

	"github.com/kevin07696/checkout-aggregator/internal/domain/models"
)

// Mutator is applied to the current record inside an atomic update. It must
// be side-effect free; the store may re-run it on CAS retry.
type Mutator func(tx *models.Transaction) error

// TransactionRepository defines the interface for transaction persistence.
// Update is the sole mutation entry point: it serializes concurrent callers
// on the same id so two simultaneous success signals cannot both observe
// SideEffectsDispatched == false.
type TransactionRepository interface {
	// Create persists a new transaction. The caller only invokes this after
	// the provider call succeeded, so a record is never stored without a
	// confirmed provider handle.
	Create(ctx context.Context, tx *models.Transaction) error

	// GetByID retrieves a transaction by its merchant transaction id.
	// Returns domain.ErrTxnNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*models.Transaction, error)

	// Update atomically applies the mutator to the record with the given id
	// and returns the post-mutation record. Returns domain.ErrTxnNotFound
	// for unknown ids; a record is never fabricated from a signal.
	Update(ctx context.Context, id string, fn Mutator) (*models.Transaction, error)
}
