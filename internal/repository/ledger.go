package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/quickgpt/quickgpt/internal/model"
)

// Ledger errors.
var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// DefaultHoldTTL bounds how long a reservation blocks credits if it is
// never committed or released.
const DefaultHoldTTL = 5 * time.Minute

// Balance returns the user's current credits.
func (r *Repository) Balance(ctx context.Context, userID string) (int64, error) {
	var credits int64
	err := r.pool.QueryRow(ctx, `SELECT credits FROM users WHERE id = $1`, userID).Scan(&credits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return credits, nil
}

// Debit subtracts amount in a single guarded statement and returns the new
// balance. Concurrent debits for the same user serialize on the row.
func (r *Repository) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return debit(ctx, r.pool, userID, amount)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func debit(ctx context.Context, q queryRower, userID string, amount int64) (int64, error) {
	query := `
		UPDATE users
		SET credits = credits - $2
		WHERE id = $1 AND credits >= $2
		RETURNING credits
	`

	var balance int64
	err := q.QueryRow(ctx, query, userID, amount).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to debit credits: %w", err)
	}

	// Zero rows: either the user is gone or the balance is too low.
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return 0, ErrUserNotFound
	}
	return 0, ErrInsufficientCredits
}

// Credit adds amount to the user's balance at most once per sourceID.
// It reports whether this call applied the grant.
func (r *Repository) Credit(ctx context.Context, userID string, amount int64, sourceID string) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}

	applied := false
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO credit_grants (source_id, user_id, amount)
			VALUES ($1, $2, $3)
			ON CONFLICT (source_id) DO NOTHING
		`, sourceID, userID, amount)
		if err != nil {
			return fmt.Errorf("failed to record credit grant: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		tag, err = tx.Exec(ctx, `UPDATE users SET credits = credits + $2 WHERE id = $1`, userID, amount)
		if err != nil {
			return fmt.Errorf("failed to credit user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrUserNotFound
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// Reserve places a hold of amount against the user's balance. The hold is
// rejected with ErrInsufficientCredits when the balance minus all
// unexpired holds cannot cover it. Holds never change the balance.
func (r *Repository) Reserve(ctx context.Context, userID string, amount int64, ttl time.Duration) (*model.CreditHold, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if ttl <= 0 {
		ttl = DefaultHoldTTL
	}

	hold := &model.CreditHold{
		ID:     ulid.Make().String(),
		UserID: userID,
		Amount: amount,
	}

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		var credits int64
		err := tx.QueryRow(ctx, `SELECT credits FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&credits)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to lock user: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM credit_holds WHERE user_id = $1 AND expires_at <= NOW()`, userID); err != nil {
			return fmt.Errorf("failed to purge expired holds: %w", err)
		}

		var held int64
		err = tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM credit_holds WHERE user_id = $1`, userID).Scan(&held)
		if err != nil {
			return fmt.Errorf("failed to sum holds: %w", err)
		}

		if credits-held < amount {
			return ErrInsufficientCredits
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO credit_holds (id, user_id, amount, expires_at)
			VALUES ($1, $2, $3, $4)
		`, hold.ID, userID, amount, time.Now().Add(ttl))
		if err != nil {
			return fmt.Errorf("failed to insert hold: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hold, nil
}

// Commit converts a hold into a debit and returns the new balance.
func (r *Repository) Commit(ctx context.Context, hold *model.CreditHold) (int64, error) {
	var balance int64
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM credit_holds WHERE id = $1`, hold.ID); err != nil {
			return fmt.Errorf("failed to delete hold: %w", err)
		}
		b, err := debit(ctx, tx, hold.UserID, hold.Amount)
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Release drops a hold without debiting. Releasing an unknown or already
// released hold is a no-op.
func (r *Repository) Release(ctx context.Context, hold *model.CreditHold) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM credit_holds WHERE id = $1`, hold.ID); err != nil {
		return fmt.Errorf("failed to release hold: %w", err)
	}
	return nil
}
