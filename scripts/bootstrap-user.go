package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/quickgpt/quickgpt/internal/auth"
	"github.com/quickgpt/quickgpt/internal/model"
	"github.com/quickgpt/quickgpt/internal/repository"
)

type output struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Credits   int64     `json:"credits"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		jwtSecret   = flag.String("jwt-secret", os.Getenv("JWT_SECRET"), "Secret used to sign session tokens")
		name        = flag.String("name", "Demo User", "Display name")
		email       = flag.String("email", "demo@quickgpt.local", "User email")
		password    = flag.String("password", os.Getenv("BOOTSTRAP_PASSWORD"), "Password (a random one is generated when empty)")
		credits     = flag.Int64("credits", 100, "Starting credit balance for a new user")
		tokenTTL    = flag.Duration("token-ttl", 7*24*time.Hour, "Session token lifetime")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}
	if *jwtSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is required")
		os.Exit(1)
	}
	if *credits < 0 {
		fmt.Fprintln(os.Stderr, "credits must not be negative")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	user, err := ensureUser(ctx, repo, *name, strings.ToLower(strings.TrimSpace(*email)), *password, *credits)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	token, claims, err := auth.NewTokenManager(*jwtSecret, *tokenTTL).Issue(user.ID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue token:", err)
		os.Exit(1)
	}

	out := output{
		UserID:    user.ID,
		Email:     user.Email,
		Credits:   user.Credits,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.Token)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}

// ensureUser returns the existing user for email, or creates one with the
// given balance. An existing user's balance is left alone.
func ensureUser(ctx context.Context, repo *repository.Repository, name, email, password string, credits int64) (*model.User, error) {
	existing, err := repo.GetUserByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if password == "" {
		password = ulid.Make().String()
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:           ulid.Make().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Credits:      credits,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}
