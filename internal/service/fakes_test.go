package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/quickgpt/quickgpt/internal/cache"
	"github.com/quickgpt/quickgpt/internal/model"
	"github.com/quickgpt/quickgpt/internal/payment"
	"github.com/quickgpt/quickgpt/internal/provider"
	"github.com/quickgpt/quickgpt/internal/repository"
)

// memStore is an in-memory stand-in for the repository. It returns the
// same sentinel errors as the Postgres implementation.
type memStore struct {
	mu     sync.Mutex
	users  map[string]*model.User
	chats  map[string]*model.Chat
	holds  map[string]*model.CreditHold
	grants map[string]bool
	txns   map[string]*model.Transaction

	// commitErr makes Commit fail once set.
	commitErr error
	// appendErrAt fails the Nth AppendMessage call (1-based) when > 0.
	appendErrAt int
	appends     int
}

func newMemStore() *memStore {
	return &memStore{
		users:  make(map[string]*model.User),
		chats:  make(map[string]*model.Chat),
		holds:  make(map[string]*model.CreditHold),
		grants: make(map[string]bool),
		txns:   make(map[string]*model.Transaction),
	}
}

func (m *memStore) addUser(id string, credits int64) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &model.User{ID: id, Name: "User " + id, Email: id + "@example.com", Credits: credits, CreatedAt: time.Now().UTC()}
	m.users[id] = u
	return u
}

func (m *memStore) addChat(id, userID string) *model.Chat {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	c := &model.Chat{ID: id, UserID: userID, Name: model.DefaultChatName, Messages: []model.Message{}, CreatedAt: now, UpdatedAt: now}
	m.chats[id] = c
	return c
}

func (m *memStore) credits(userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID].Credits
}

func (m *memStore) messages(chatID string) []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[chatID]
	if !ok {
		return nil
	}
	return append([]model.Message(nil), c.Messages...)
}

func (m *memStore) heldCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.holds)
}

// UserStore

func (m *memStore) CreateUser(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrEmailExists
		}
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memStore) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

// ChatStore

func (m *memStore) CreateChat(_ context.Context, chat *model.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *chat
	cp.Messages = []model.Message{}
	m.chats[chat.ID] = &cp
	return nil
}

func (m *memStore) GetChat(_ context.Context, chatID, userID string) (*model.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[chatID]
	if !ok || c.UserID != userID {
		return nil, repository.ErrChatNotFound
	}
	cp := *c
	cp.Messages = append([]model.Message{}, c.Messages...)
	return &cp, nil
}

func (m *memStore) ListChatsByUser(_ context.Context, userID string) ([]*model.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Chat, 0)
	for _, c := range m.chats {
		if c.UserID == userID {
			cp := *c
			cp.Messages = append([]model.Message{}, c.Messages...)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *memStore) AppendMessage(_ context.Context, chatID, userID string, msg model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++
	if m.appendErrAt > 0 && m.appends == m.appendErrAt {
		return errors.New("connection reset")
	}
	c, ok := m.chats[chatID]
	if !ok || c.UserID != userID {
		return repository.ErrChatNotFound
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = msg.Timestamp
	return nil
}

func (m *memStore) DeleteChat(_ context.Context, chatID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[chatID]
	if !ok || c.UserID != userID {
		return repository.ErrChatNotFound
	}
	delete(m.chats, chatID)
	return nil
}

// GalleryStore

func (m *memStore) ListPublishedImages(_ context.Context, limit int) ([]model.PublishedImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.PublishedImage, 0)
	for _, c := range m.chats {
		for _, msg := range c.Messages {
			if msg.Role == model.RoleAssistant && msg.IsImage && msg.IsPublished {
				out = append(out, model.PublishedImage{
					ImageURL:  msg.Content,
					UserName:  m.users[c.UserID].Name,
					CreatedAt: msg.Timestamp,
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ledger

func (m *memStore) Balance(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	return u.Credits, nil
}

func (m *memStore) Reserve(_ context.Context, userID string, amount int64, _ time.Duration) (*model.CreditHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	var held int64
	for _, h := range m.holds {
		if h.UserID == userID {
			held += h.Amount
		}
	}
	if u.Credits-held < amount {
		return nil, repository.ErrInsufficientCredits
	}
	h := &model.CreditHold{ID: ulid.Make().String(), UserID: userID, Amount: amount}
	m.holds[h.ID] = h
	return h, nil
}

func (m *memStore) Commit(_ context.Context, hold *model.CreditHold) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.holds, hold.ID)
	if m.commitErr != nil {
		return 0, m.commitErr
	}
	u, ok := m.users[hold.UserID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	if u.Credits < hold.Amount {
		return 0, repository.ErrInsufficientCredits
	}
	u.Credits -= hold.Amount
	return u.Credits, nil
}

func (m *memStore) Release(_ context.Context, hold *model.CreditHold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.holds, hold.ID)
	return nil
}

func (m *memStore) Credit(_ context.Context, userID string, amount int64, sourceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grants[sourceID] {
		return false, nil
	}
	u, ok := m.users[userID]
	if !ok {
		return false, repository.ErrUserNotFound
	}
	m.grants[sourceID] = true
	u.Credits += amount
	return true, nil
}

// TransactionStore

func (m *memStore) CreateTransaction(_ context.Context, txn *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *txn
	m.txns[txn.ID] = &cp
	return nil
}

func (m *memStore) GetTransaction(_ context.Context, id string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[id]
	if !ok {
		return nil, payment.ErrTransactionNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) MarkPaid(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[id]
	if !ok {
		return false, payment.ErrTransactionNotFound
	}
	if t.IsPaid {
		return false, nil
	}
	t.IsPaid = true
	t.PaidAt = &at
	return true, nil
}

// stubGenerator returns a fixed output or error and counts calls.
type stubGenerator struct {
	mode  model.Mode
	out   *provider.Output
	err   error
	calls int
	mu    sync.Mutex
	// before runs at the start of every Generate call.
	before func()
}

func (g *stubGenerator) Mode() model.Mode { return g.mode }

func (g *stubGenerator) Generate(ctx context.Context, _ string) (*provider.Output, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.before != nil {
		g.before()
	}
	if g.err != nil {
		return nil, g.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.out, nil
}

func (g *stubGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// memGalleryCache is a map-backed GalleryCache.
type memGalleryCache struct {
	mu          sync.Mutex
	images      []model.PublishedImage
	set         bool
	invalidated int
	getErr      error
}

func (c *memGalleryCache) GetPublishedImages(context.Context) ([]model.PublishedImage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	if !c.set {
		return nil, cache.ErrCacheMiss
	}
	return c.images, nil
}

func (c *memGalleryCache) SetPublishedImages(_ context.Context, images []model.PublishedImage, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.images = images
	c.set = true
	return nil
}

func (c *memGalleryCache) InvalidatePublishedImages(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.images = nil
	c.set = false
	c.invalidated++
	return nil
}

// memRevoker is a map-backed TokenRevoker.
type memRevoker struct {
	mu      sync.Mutex
	revoked map[string]bool
	err     error
}

func (r *memRevoker) RevokeToken(_ context.Context, tokenID string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revoked == nil {
		r.revoked = make(map[string]bool)
	}
	r.revoked[tokenID] = true
	return nil
}

func (r *memRevoker) IsTokenRevoked(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	return r.revoked[tokenID], nil
}

// memDeduper is a map-backed EventDeduper.
type memDeduper struct {
	mu      sync.Mutex
	claimed map[string]bool
	err     error
}

func (d *memDeduper) ClaimPaymentEvent(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if d.claimed == nil {
		d.claimed = make(map[string]bool)
	}
	if d.claimed[eventID] {
		return false, nil
	}
	d.claimed[eventID] = true
	return true, nil
}

func (d *memDeduper) ReleasePaymentEvent(_ context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.claimed, eventID)
	return nil
}
