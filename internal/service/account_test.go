package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickgpt/quickgpt/internal/auth"
	"github.com/quickgpt/quickgpt/internal/metrics"
)

var fastHash = auth.Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}

func newAccountEnv(t *testing.T) (*AccountService, *memStore, *memRevoker, *metrics.InMemoryRecorder) {
	t.Helper()
	store := newMemStore()
	revoker := &memRevoker{}
	rec := metrics.NewInMemory()
	tokens := auth.NewTokenManager("test-secret-0123456789", time.Hour)
	svc := NewAccountService(store, tokens, revoker, 20, nil, rec)
	svc.hashParams = fastHash
	return svc, store, revoker, rec
}

func TestAccountService_RegisterGrantsSignupCredits(t *testing.T) {
	svc, store, _, _ := newAccountEnv(t)

	sess, err := svc.Register(context.Background(), RegisterInput{
		Name: "Ada", Email: " Ada@Example.com ", Password: "correct horse",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "ada@example.com", sess.User.Email)
	assert.Equal(t, int64(20), sess.User.Credits)
	assert.Equal(t, int64(20), store.credits(sess.User.ID))
	assert.NotEqual(t, "correct horse", sess.User.PasswordHash)
}

func TestAccountService_RegisterValidation(t *testing.T) {
	svc, _, _, _ := newAccountEnv(t)

	testCases := []struct {
		name string
		in   RegisterInput
	}{
		{"missing name", RegisterInput{Email: "a@example.com", Password: "longenough"}},
		{"bad email", RegisterInput{Name: "A", Email: "not-an-email", Password: "longenough"}},
		{"short password", RegisterInput{Name: "A", Email: "a@example.com", Password: "short"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestAccountService_RegisterDuplicateEmail(t *testing.T) {
	svc, _, _, _ := newAccountEnv(t)
	in := RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "correct horse"}

	_, err := svc.Register(context.Background(), in)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), in)
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestAccountService_Login(t *testing.T) {
	svc, _, _, rec := newAccountEnv(t)
	_, err := svc.Register(context.Background(), RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "correct horse"})
	require.NoError(t, err)

	sess, err := svc.Login(context.Background(), "ADA@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "Ada", sess.User.Name)

	_, err = svc.Login(context.Background(), "ada@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.Equal(t, uint64(2), rec.Snapshot().AuthFailures["bad_credentials"])
}

func TestAccountService_LoginUpgradesWeakHash(t *testing.T) {
	svc, store, _, _ := newAccountEnv(t)
	svc.hashParams = auth.Params{Time: 1, Memory: 512, Threads: 1, KeyLen: 16, SaltLen: 8}
	reg, err := svc.Register(context.Background(), RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "correct horse"})
	require.NoError(t, err)
	weak := reg.User.PasswordHash

	svc.hashParams = fastHash
	_, err = svc.Login(context.Background(), "ada@example.com", "correct horse")
	require.NoError(t, err)

	stored, err := store.GetUserByID(context.Background(), reg.User.ID)
	require.NoError(t, err)
	assert.NotEqual(t, weak, stored.PasswordHash)
	assert.False(t, auth.NeedsRehash(stored.PasswordHash, fastHash))

	_, err = svc.Login(context.Background(), "ada@example.com", "correct horse")
	assert.NoError(t, err, "upgraded hash must still verify")
}

func TestAccountService_AuthenticateLoadsFreshUser(t *testing.T) {
	svc, store, _, _ := newAccountEnv(t)
	sess, err := svc.Register(context.Background(), RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "correct horse"})
	require.NoError(t, err)

	_, err = store.Credit(context.Background(), sess.User.ID, 100, "txn-1")
	require.NoError(t, err)

	ac, err := svc.Authenticate(context.Background(), sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, ac.UserID)
	assert.Equal(t, sess.TokenID, ac.TokenID)
	assert.Equal(t, int64(120), ac.User.Credits)
}

func TestAccountService_AuthenticateRejects(t *testing.T) {
	svc, store, _, _ := newAccountEnv(t)
	sess, err := svc.Register(context.Background(), RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "correct horse"})
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)

	store.mu.Lock()
	delete(store.users, sess.User.ID)
	store.mu.Unlock()

	_, err = svc.Authenticate(context.Background(), sess.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAccountService_LogoutRevokesToken(t *testing.T) {
	svc, _, _, _ := newAccountEnv(t)
	sess, err := svc.Register(context.Background(), RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "correct horse"})
	require.NoError(t, err)

	ac, err := svc.Authenticate(context.Background(), sess.Token)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), ac))

	_, err = svc.Authenticate(context.Background(), sess.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAccountService_RevocationStoreDownFailsClosed(t *testing.T) {
	svc, _, revoker, _ := newAccountEnv(t)
	sess, err := svc.Register(context.Background(), RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "correct horse"})
	require.NoError(t, err)

	revoker.err = errors.New("redis down")

	_, err = svc.Authenticate(context.Background(), sess.Token)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}
