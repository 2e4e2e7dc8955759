package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/quickgpt/quickgpt/internal/auth"
	"github.com/quickgpt/quickgpt/internal/metrics"
	"github.com/quickgpt/quickgpt/internal/model"
	"github.com/quickgpt/quickgpt/internal/repository"
)

const maxNameLength = 100

// Session is an issued login token.
type Session struct {
	Token     string
	TokenID   string
	ExpiresAt time.Time
	User      *model.User
}

// AccountService handles registration, login and request authentication.
type AccountService struct {
	users         UserStore
	tokens        *auth.TokenManager
	revoker       TokenRevoker
	signupCredits int64
	hashParams    auth.Params
	logger        *slog.Logger
	metrics       metrics.Recorder
}

// NewAccountService creates a new AccountService.
func NewAccountService(
	users UserStore,
	tokens *auth.TokenManager,
	revoker TokenRevoker,
	signupCredits int64,
	logger *slog.Logger,
	recorder metrics.Recorder,
) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &AccountService{
		users:         users,
		tokens:        tokens,
		revoker:       revoker,
		signupCredits: signupCredits,
		hashParams:    auth.DefaultParams,
		logger:        logger,
		metrics:       recorder,
	}
}

// RegisterInput defines input for creating an account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Register creates an account with the signup credit grant and logs it in.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	hash, err := auth.HashPasswordWithParams(in.Password, s.hashParams)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:           ulid.Make().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Credits:      s.signupCredits,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user_registered", "user_id", user.ID)
	return s.issue(user)
}

// Login verifies credentials and issues a session token.
func (s *AccountService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.metrics.IncAuthFailure("bad_credentials")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		s.metrics.IncAuthFailure("bad_credentials")
		return nil, ErrInvalidCredentials
	}

	if auth.NeedsRehash(user.PasswordHash, s.hashParams) {
		s.rehash(ctx, user, password)
	}

	return s.issue(user)
}

// rehash upgrades a hash made with older parameters. Failure only means the
// upgrade is retried at the next login.
func (s *AccountService) rehash(ctx context.Context, user *model.User, password string) {
	hash, err := auth.HashPasswordWithParams(password, s.hashParams)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		s.logger.Warn("password_rehash_failed", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = hash
}

func (s *AccountService) issue(user *model.User) (*Session, error) {
	token, claims, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{
		Token:     token,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      user,
	}, nil
}

// Logout revokes the session's token until it would have expired.
func (s *AccountService) Logout(ctx context.Context, ac *model.AuthContext) error {
	if ac == nil || ac.TokenID == "" {
		return nil
	}
	if err := s.revoker.RevokeToken(ctx, ac.TokenID, ac.ExpiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.logger.Info("user_logged_out", "user_id", ac.UserID)
	return nil
}

// Authenticate resolves a session token to the current user record.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*model.AuthContext, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		reason := "invalid_token"
		if errors.Is(err, auth.ErrExpiredToken) {
			reason = "expired_token"
		}
		s.metrics.IncAuthFailure(reason)
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	revoked, err := s.revoker.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		s.metrics.IncAuthFailure("revoked_token")
		return nil, fmt.Errorf("%w: token revoked", ErrUnauthorized)
	}

	user, err := s.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.metrics.IncAuthFailure("unknown_user")
			return nil, fmt.Errorf("%w: user not found", ErrUnauthorized)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	return &model.AuthContext{
		UserID:    user.ID,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      user,
	}, nil
}

// GetUser returns the current record for userID.
func (s *AccountService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}
