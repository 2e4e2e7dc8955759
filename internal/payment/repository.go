package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quickgpt/quickgpt/internal/model"
)

// ErrTransactionNotFound is returned when a transaction id is unknown.
var ErrTransactionNotFound = errors.New("transaction not found")

// Repository stores credit purchase transactions.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new transaction repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateTransaction records a pending purchase.
func (r *Repository) CreateTransaction(ctx context.Context, txn *model.Transaction) error {
	query := `
		INSERT INTO transactions (id, user_id, plan_id, amount, credits, is_paid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		txn.ID,
		txn.UserID,
		txn.PlanID,
		txn.Amount,
		txn.Credits,
		txn.IsPaid,
		txn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetTransaction retrieves a transaction by ID.
func (r *Repository) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	query := `
		SELECT id, user_id, plan_id, amount, credits, is_paid, paid_at, created_at
		FROM transactions
		WHERE id = $1
	`

	var (
		txn    model.Transaction
		paidAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&txn.ID,
		&txn.UserID,
		&txn.PlanID,
		&txn.Amount,
		&txn.Credits,
		&txn.IsPaid,
		&paidAt,
		&txn.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query transaction: %w", err)
	}
	if paidAt.Valid {
		t := paidAt.Time
		txn.PaidAt = &t
	}
	return &txn, nil
}

// MarkPaid flags a transaction as paid. It reports false when the
// transaction was already paid.
func (r *Repository) MarkPaid(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET is_paid = TRUE, paid_at = $2
		WHERE id = $1 AND NOT is_paid
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark transaction paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
