//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quickgpt/quickgpt/internal/model"
	"github.com/quickgpt/quickgpt/internal/testutil"
)

// ============================================================================
// Migration Integration Tests
// ============================================================================

func TestIntegrationMigration_ApplyAllTables(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	tables := []string{
		"users",
		"chats",
		"messages",
		"credit_holds",
		"credit_grants",
		"transactions",
	}

	for _, table := range tables {
		t.Run(table, func(t *testing.T) {
			exists, err := tableExists(ctx, pool, table)
			if err != nil {
				t.Fatalf("tableExists failed: %v", err)
			}
			if !exists {
				t.Errorf("Table %q should exist after migrations", table)
			}
		})
	}
}

func TestIntegrationMigration_MessagesTableSchema(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	for _, col := range []string{"seq", "chat_id", "role", "content", "is_image", "is_published", "created_at"} {
		t.Run(col, func(t *testing.T) {
			exists, err := columnExists(ctx, pool, "messages", col)
			if err != nil {
				t.Fatalf("columnExists failed: %v", err)
			}
			if !exists {
				t.Errorf("Column %q should exist in messages table", col)
			}
		})
	}
}

func TestIntegrationMigration_CreditsNeverNegative(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	_, err := pool.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, credits)
		VALUES ('neg-user', 'Neg', 'neg@example.com', 'x', -1)
	`)
	if err == nil {
		t.Error("Expected check constraint violation for negative credits")
	}
}

func TestIntegrationMigration_RoleConstraint(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	if _, err := pool.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, credits)
		VALUES ('role-user', 'Role', 'role@example.com', 'x', 0)
	`); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO chats (id, user_id, name) VALUES ('role-chat', 'role-user', 'c')`); err != nil {
		t.Fatalf("insert chat: %v", err)
	}

	_, err := pool.Exec(ctx, `
		INSERT INTO messages (chat_id, role, content)
		VALUES ('role-chat', 'system', 'hi')
	`)
	if err == nil {
		t.Error("Expected check constraint violation for unknown role")
	}
}

// ============================================================================
// Helper Functions
// ============================================================================

func tableExists(ctx context.Context, pool *pgxpool.Pool, tableName string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`, tableName).Scan(&exists)
	return exists, err
}

func columnExists(ctx context.Context, pool *pgxpool.Pool, tableName, columnName string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.columns
			WHERE table_schema = 'public'
			AND table_name = $1
			AND column_name = $2
		)
	`, tableName, columnName).Scan(&exists)
	return exists, err
}

// ============================================================================
// Test Environment Setup
// ============================================================================

func newMigrationTestEnv(t *testing.T) (context.Context, *pgxpool.Pool) {
	t.Helper()
	ctx, repo := newRepoTestEnv(t)
	return ctx, repo.Pool()
}

func newRepoTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, repo
}

func mustCreateUser(t *testing.T, ctx context.Context, repo *Repository, credits int64) string {
	t.Helper()
	user := testutil.NewTestUser(t, credits)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return user.ID
}

func newUserWithEmail(t *testing.T, email string) *model.User {
	t.Helper()
	user := testutil.NewTestUser(t, 0)
	user.Email = email
	return user
}
