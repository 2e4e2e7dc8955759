// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/quickgpt/quickgpt/internal/model"
	"github.com/quickgpt/quickgpt/internal/provider"
)

// Service errors.
var (
	ErrChatNotFound        = errors.New("chat not found")
	ErrInsufficientCredits = errors.New("you don't have enough credits to use this feature")
	ErrProvider            = errors.New("generation failed")
	ErrInvalidPrompt       = errors.New("prompt must be between 1 and 4000 characters")
	ErrInvalidMode         = errors.New("unknown generation mode")
	ErrModeUnavailable     = errors.New("generation mode not available")

	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("not authorized")

	ErrPlanNotFound        = errors.New("plan not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// ChatStore persists chats and their append-only message sequences.
type ChatStore interface {
	CreateChat(ctx context.Context, chat *model.Chat) error
	GetChat(ctx context.Context, chatID, userID string) (*model.Chat, error)
	ListChatsByUser(ctx context.Context, userID string) ([]*model.Chat, error)
	AppendMessage(ctx context.Context, chatID, userID string, msg model.Message) error
	DeleteChat(ctx context.Context, chatID, userID string) error
}

// Ledger owns per-user credit balances.
type Ledger interface {
	Balance(ctx context.Context, userID string) (int64, error)
	Reserve(ctx context.Context, userID string, amount int64, ttl time.Duration) (*model.CreditHold, error)
	Commit(ctx context.Context, hold *model.CreditHold) (int64, error)
	Release(ctx context.Context, hold *model.CreditHold) error
	Credit(ctx context.Context, userID string, amount int64, sourceID string) (bool, error)
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}

// GeneratorResolver picks the generator for a mode.
type GeneratorResolver interface {
	Resolve(mode model.Mode) (provider.Generator, error)
}

// GalleryStore computes the published image projection.
type GalleryStore interface {
	ListPublishedImages(ctx context.Context, limit int) ([]model.PublishedImage, error)
}

// GalleryCache caches the published image projection.
type GalleryCache interface {
	GetPublishedImages(ctx context.Context) ([]model.PublishedImage, error)
	SetPublishedImages(ctx context.Context, images []model.PublishedImage, ttl time.Duration) error
	InvalidatePublishedImages(ctx context.Context) error
}

// TokenRevoker tracks logged-out session tokens.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// TransactionStore persists credit purchases.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, txn *model.Transaction) error
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	MarkPaid(ctx context.Context, id string, at time.Time) (bool, error)
}

// EventDeduper remembers payment notifications already being processed.
type EventDeduper interface {
	ClaimPaymentEvent(ctx context.Context, eventID string) (bool, error)
	ReleasePaymentEvent(ctx context.Context, eventID string) error
}
