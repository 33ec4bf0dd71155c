package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kevin07696/checkout-aggregator/internal/domain"
	"github.com/kevin07696/checkout-aggregator/internal/domain/models"
	"github.com/kevin07696/checkout-aggregator/internal/domain/ports"
)

// TransactionRepository implements ports.TransactionRepository on PostgreSQL.
// Update takes a row lock (SELECT ... FOR UPDATE) so concurrent signals for
// the same transaction serialize at the database.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

const transactionColumns = `
	id, provider, amount, customer_name, customer_email, customer_phone,
	plan, state, provider_handle, redirect_target, side_effects_dispatched,
	raw_provider_payload, created_at, updated_at, verified_at`

// Create persists a new transaction
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	amount, err := decimalToNumeric(tx.Amount)
	if err != nil {
		return fmt.Errorf("convert amount: %w", err)
	}

	plan, err := json.Marshal(tx.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO transactions (
			id, provider, amount, customer_name, customer_email, customer_phone,
			plan, state, provider_handle, redirect_target, side_effects_dispatched,
			raw_provider_payload, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		tx.ID,
		string(tx.Provider),
		amount,
		tx.Customer.Name,
		tx.Customer.Email,
		nullText(tx.Customer.Phone),
		plan,
		string(tx.State),
		tx.ProviderHandle,
		nullText(tx.RedirectTarget),
		tx.SideEffectsDispatched,
		rawOrEmpty(tx.RawProviderPayload),
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "create transaction", err)
	}
	return nil
}

// GetByID retrieves a transaction by its merchant transaction id
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT`+transactionColumns+` FROM transactions WHERE id = $1`, id)

	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTxnNotFound
		}
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "get transaction", err)
	}
	return tx, nil
}

// Update locks the row, applies the mutator, and writes the result back.
// The row lock is the serialization point for concurrent status signals.
func (r *TransactionRepository) Update(ctx context.Context, id string, fn ports.Mutator) (*models.Transaction, error) {
	dbTx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "begin update", err)
	}
	defer dbTx.Rollback(ctx)

	row := dbTx.QueryRow(ctx,
		`SELECT`+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)

	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTxnNotFound
		}
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "load transaction for update", err)
	}

	if err := fn(tx); err != nil {
		return nil, err
	}
	tx.UpdatedAt = time.Now()

	var verifiedAt pgtype.Timestamptz
	if tx.VerifiedAt != nil {
		verifiedAt = pgtype.Timestamptz{Time: *tx.VerifiedAt, Valid: true}
	}

	_, err = dbTx.Exec(ctx, `
		UPDATE transactions SET
			state = $2,
			side_effects_dispatched = $3,
			raw_provider_payload = $4,
			updated_at = $5,
			verified_at = $6
		WHERE id = $1`,
		tx.ID,
		string(tx.State),
		tx.SideEffectsDispatched,
		rawOrEmpty(tx.RawProviderPayload),
		tx.UpdatedAt,
		verifiedAt,
	)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "write transaction", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "commit update", err)
	}
	return tx, nil
}

// scanTransaction converts a transactions row to the domain model
func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var (
		tx         models.Transaction
		provider   string
		state      string
		amount     pgtype.Numeric
		phone      pgtype.Text
		redirect   pgtype.Text
		plan       []byte
		raw        []byte
		verifiedAt pgtype.Timestamptz
	)

	err := row.Scan(
		&tx.ID, &provider, &amount, &tx.Customer.Name, &tx.Customer.Email,
		&phone, &plan, &state, &tx.ProviderHandle, &redirect,
		&tx.SideEffectsDispatched, &raw, &tx.CreatedAt, &tx.UpdatedAt,
		&verifiedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Provider = models.Provider(provider)
	tx.State = models.TransactionState(state)
	tx.Customer.Phone = phone.String
	tx.RedirectTarget = redirect.String

	if tx.Amount, err = pgNumericToDecimal(amount); err != nil {
		return nil, fmt.Errorf("convert amount: %w", err)
	}
	if len(plan) > 0 {
		if err := json.Unmarshal(plan, &tx.Plan); err != nil {
			return nil, fmt.Errorf("unmarshal plan: %w", err)
		}
	}
	if len(raw) > 0 {
		tx.RawProviderPayload = json.RawMessage(raw)
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		tx.VerifiedAt = &t
	}

	return &tx, nil
}

// rawOrEmpty keeps the jsonb column non-null for absent payloads
func rawOrEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}

var _ ports.TransactionRepository = (*TransactionRepository)(nil)
