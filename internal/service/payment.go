package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/quickgpt/quickgpt/internal/metrics"
	"github.com/quickgpt/quickgpt/internal/model"
	"github.com/quickgpt/quickgpt/internal/payment"
)

// Checkout is a pending purchase and where to pay for it.
type Checkout struct {
	Transaction *model.Transaction
	URL         string
}

// PaymentService sells credit plans and applies completed payments.
type PaymentService struct {
	txns            TransactionStore
	ledger          Ledger
	deduper         EventDeduper
	checkoutBaseURL string
	logger          *slog.Logger
	metrics         metrics.Recorder
	now             func() time.Time
}

// NewPaymentService creates a new PaymentService. deduper may be nil.
func NewPaymentService(
	txns TransactionStore,
	ledger Ledger,
	deduper EventDeduper,
	checkoutBaseURL string,
	logger *slog.Logger,
	recorder metrics.Recorder,
) *PaymentService {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &PaymentService{
		txns:            txns,
		ledger:          ledger,
		deduper:         deduper,
		checkoutBaseURL: checkoutBaseURL,
		logger:          logger,
		metrics:         recorder,
		now:             time.Now,
	}
}

// Plans lists the plans on sale.
func (s *PaymentService) Plans() []model.Plan {
	return model.Plans
}

// Purchase records a pending transaction for planID.
func (s *PaymentService) Purchase(ctx context.Context, userID, planID string) (*Checkout, error) {
	plan, ok := model.FindPlan(planID)
	if !ok {
		return nil, ErrPlanNotFound
	}

	txn := &model.Transaction{
		ID:        ulid.Make().String(),
		UserID:    userID,
		PlanID:    plan.ID,
		Amount:    plan.Price,
		Credits:   plan.Credits,
		CreatedAt: s.now().UTC(),
	}
	if err := s.txns.CreateTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	checkout, err := s.checkoutURL(txn.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("purchase_started", "user_id", userID, "plan_id", plan.ID, "transaction_id", txn.ID)
	return &Checkout{Transaction: txn, URL: checkout}, nil
}

func (s *PaymentService) checkoutURL(txnID string) (string, error) {
	u, err := url.Parse(s.checkoutBaseURL)
	if err != nil {
		return "", fmt.Errorf("parse checkout url: %w", err)
	}
	q := u.Query()
	q.Set("transaction_id", txnID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// HandleEvent applies a payment notification. It reports whether credits
// were granted by this delivery; duplicates return false without error.
func (s *PaymentService) HandleEvent(ctx context.Context, evt payment.Event) (bool, error) {
	if evt.Type != payment.EventPaymentSucceeded {
		s.logger.Debug("payment_event_ignored", "event_id", evt.EventID, "type", evt.Type)
		return false, nil
	}
	if evt.TransactionID == "" {
		return false, fmt.Errorf("%w: transaction_id is required", ErrInvalidInput)
	}

	claimKey := evt.EventID
	if claimKey == "" {
		claimKey = evt.TransactionID
	}
	claimed := false
	if s.deduper != nil {
		first, err := s.deduper.ClaimPaymentEvent(ctx, claimKey)
		if err != nil {
			// The ledger is idempotent on its own.
			s.logger.Warn("payment_dedupe_unavailable", "event_id", claimKey, "error", err)
		} else if !first {
			s.logger.Info("payment_event_duplicate", "event_id", claimKey)
			return false, nil
		} else {
			claimed = true
		}
	}

	applied, err := s.applyPayment(ctx, evt.TransactionID)
	if err != nil && claimed {
		if rerr := s.deduper.ReleasePaymentEvent(ctx, claimKey); rerr != nil {
			s.logger.Warn("payment_dedupe_release_failed", "event_id", claimKey, "error", rerr)
		}
	}
	return applied, err
}

func (s *PaymentService) applyPayment(ctx context.Context, txnID string) (bool, error) {
	txn, err := s.txns.GetTransaction(ctx, txnID)
	if err != nil {
		if errors.Is(err, payment.ErrTransactionNotFound) {
			return false, ErrTransactionNotFound
		}
		return false, fmt.Errorf("get transaction: %w", err)
	}
	if txn.IsPaid {
		return false, nil
	}

	applied, err := s.ledger.Credit(ctx, txn.UserID, txn.Credits, txn.ID)
	if err != nil {
		return false, fmt.Errorf("credit user: %w", err)
	}

	if _, err := s.txns.MarkPaid(ctx, txn.ID, s.now().UTC()); err != nil {
		return applied, fmt.Errorf("mark paid: %w", err)
	}

	if applied {
		s.metrics.AddCreditsGranted(txn.Credits)
		s.logger.Info("credits_granted",
			"user_id", txn.UserID,
			"transaction_id", txn.ID,
			"credits", txn.Credits,
		)
	}
	return applied, nil
}
