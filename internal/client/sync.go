package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/quickgpt/quickgpt/internal/handler/dto"
	"github.com/quickgpt/quickgpt/internal/model"
)

var (
	// ErrEmptyPrompt is returned by Submit for a blank prompt.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrNoActiveChat is returned when no chat is selected.
	ErrNoActiveChat = errors.New("no chat selected")
	// ErrUnknownChat is returned when selecting a chat not in the local list.
	ErrUnknownChat = errors.New("chat not found")
)

// API is the subset of the HTTP API the controller drives.
type API interface {
	Me(ctx context.Context) (*model.User, error)
	Chats(ctx context.Context) ([]*model.Chat, error)
	CreateChat(ctx context.Context) (*model.Chat, error)
	DeleteChat(ctx context.Context, chatID string) error
	SendMessage(ctx context.Context, chatID, prompt string, mode model.Mode, publish bool) (*dto.MessageResponse, error)
}

var _ API = (*Client)(nil)

// State is the client's view of the account.
type State struct {
	User           *model.User
	Chats          []*model.Chat
	SelectedChatID string
}

// SubmitError reports a failed submission. Draft holds the prompt so the
// caller can put it back in the input.
type SubmitError struct {
	Draft string
	Err   error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit failed: %v", e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// SyncController keeps a local copy of the user's chats. Writes go to the
// server first or optimistically; the local copy is replaced by a refetch
// after every successful mutation.
//
// Fetches are numbered in start order. A fetch result is applied only if no
// local change happened after it started, no later fetch was applied, and
// no submit is in flight, so a slow or stale response never rolls the view
// back.
type SyncController struct {
	api    API
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	state   State
	seq     uint64 // last number handed out to a fetch or local change
	barrier uint64 // seq of the last local change
	applied uint64 // seq of the last applied fetch
	pending int    // submits awaiting a response

	refresh singleflight.Group
}

// NewSyncController creates a controller with empty state. Call Load first.
func NewSyncController(api API, logger *slog.Logger) *SyncController {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncController{api: api, logger: logger, now: time.Now}
}

// State returns a copy of the current state.
func (s *SyncController) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := State{SelectedChatID: s.state.SelectedChatID}
	if s.state.User != nil {
		u := *s.state.User
		out.User = &u
	}
	out.Chats = cloneChats(s.state.Chats)
	return out
}

// Load fetches the user and chats. A user with no chats gets one created.
func (s *SyncController) Load(ctx context.Context) error {
	user, err := s.api.Me(ctx)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	chats, err := s.api.Chats(ctx)
	if err != nil {
		return fmt.Errorf("load chats: %w", err)
	}
	if len(chats) == 0 {
		chat, err := s.api.CreateChat(ctx)
		if err != nil {
			return fmt.Errorf("create first chat: %w", err)
		}
		chats = []*model.Chat{chat}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.User = user
	s.state.Chats = chats
	s.state.SelectedChatID = keepSelection(chats, s.state.SelectedChatID)
	s.changedLocked()
	return nil
}

// Refresh replaces the local chats with the server's. Concurrent callers
// share one request, so a caller may receive the outcome of a fetch that
// was already running; mutations refetch through fetchChats instead.
func (s *SyncController) Refresh(ctx context.Context) error {
	_, err, _ := s.refresh.Do("chats", func() (any, error) {
		return nil, s.fetchChats(ctx)
	})
	return err
}

// fetchChats starts a new, unshared fetch and applies it unless it is stale.
func (s *SyncController) fetchChats(ctx context.Context) error {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	chats, err := s.api.Chats(ctx)
	if err != nil {
		return fmt.Errorf("refresh chats: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.barrier || seq <= s.applied || s.pending > 0 {
		s.logger.Debug("discarding stale chat list", "seq", seq)
		return nil
	}
	s.applied = seq
	s.state.Chats = chats
	s.state.SelectedChatID = keepSelection(chats, s.state.SelectedChatID)
	return nil
}

// changedLocked invalidates every fetch started before now.
func (s *SyncController) changedLocked() {
	s.seq++
	s.barrier = s.seq
}

// Run refreshes on every tick until ctx is done, repairing any drift
// between the local copy and the server.
func (s *SyncController) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("periodic refresh failed", "error", err)
			}
		}
	}
}

// Submit sends prompt to the active chat. The prompt is appended locally
// before the request goes out. On success the reply is appended, the cost
// is subtracted from the cached balance and the chats are refetched; on
// failure a *SubmitError is returned and the optimistic message is left in
// place.
func (s *SyncController) Submit(ctx context.Context, prompt string, mode model.Mode, publish bool) (*model.Message, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, &SubmitError{Draft: prompt, Err: ErrEmptyPrompt}
	}

	s.mu.Lock()
	chat := s.findLocked(s.state.SelectedChatID)
	if chat == nil {
		s.mu.Unlock()
		return nil, &SubmitError{Draft: prompt, Err: ErrNoActiveChat}
	}
	chat.Messages = append(chat.Messages, model.NewUserMessage(prompt, s.now()))
	chatID := chat.ID
	s.pending++
	s.changedLocked()
	s.mu.Unlock()

	resp, err := s.api.SendMessage(ctx, chatID, prompt, mode, publish)
	if err != nil {
		s.mu.Lock()
		s.pending--
		s.mu.Unlock()
		return nil, &SubmitError{Draft: prompt, Err: err}
	}

	// Responses to overlapping submits may arrive in any order, so the
	// balance moves by the reported cost rather than taking resp.Credits.
	s.mu.Lock()
	s.pending--
	if s.state.User != nil {
		s.state.User.Credits -= resp.Cost
	}
	if c := s.findLocked(chatID); c != nil {
		c.Messages = append(c.Messages, resp.Reply)
	}
	s.changedLocked()
	s.mu.Unlock()

	// The reply is already durable on the server; a failed refetch only
	// leaves the local copy stale until the next refresh.
	if err := s.fetchChats(ctx); err != nil {
		s.logger.Warn("refresh after submit failed", "chat_id", chatID, "error", err)
	}

	reply := resp.Reply
	return &reply, nil
}

// SelectChat makes id the active chat.
func (s *SyncController) SelectChat(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(id) == nil {
		return ErrUnknownChat
	}
	s.state.SelectedChatID = id
	return nil
}

// NewChat creates a chat on the server and selects it.
func (s *SyncController) NewChat(ctx context.Context) (*model.Chat, error) {
	chat, err := s.api.CreateChat(ctx)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}

	s.mu.Lock()
	s.state.Chats = append([]*model.Chat{chat}, s.state.Chats...)
	s.state.SelectedChatID = chat.ID
	s.changedLocked()
	s.mu.Unlock()

	return cloneChat(chat), nil
}

// DeleteChat deletes a chat and refetches. If it was selected, the most
// recent remaining chat becomes active.
func (s *SyncController) DeleteChat(ctx context.Context, id string) error {
	if err := s.api.DeleteChat(ctx, id); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}

	s.mu.Lock()
	kept := s.state.Chats[:0:0]
	for _, c := range s.state.Chats {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	s.state.Chats = kept
	s.state.SelectedChatID = keepSelection(kept, s.state.SelectedChatID)
	s.changedLocked()
	s.mu.Unlock()

	return s.fetchChats(ctx)
}

// Search returns the chats whose name or last message contains query,
// ignoring case.
func (s *SyncController) Search(query string) []*model.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Chat
	for _, c := range s.state.Chats {
		if c.Matches(query) {
			out = append(out, cloneChat(c))
		}
	}
	return out
}

// ActiveMessages returns the messages of the selected chat.
func (s *SyncController) ActiveMessages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat := s.findLocked(s.state.SelectedChatID)
	if chat == nil {
		return nil
	}
	return append([]model.Message(nil), chat.Messages...)
}

func (s *SyncController) findLocked(id string) *model.Chat {
	if id == "" {
		return nil
	}
	for _, c := range s.state.Chats {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// keepSelection returns selected if it is still present, else the first
// chat's id.
func keepSelection(chats []*model.Chat, selected string) string {
	for _, c := range chats {
		if c.ID == selected {
			return selected
		}
	}
	if len(chats) > 0 {
		return chats[0].ID
	}
	return ""
}

func cloneChat(c *model.Chat) *model.Chat {
	cp := *c
	cp.Messages = append([]model.Message(nil), c.Messages...)
	return &cp
}

func cloneChats(chats []*model.Chat) []*model.Chat {
	if chats == nil {
		return nil
	}
	out := make([]*model.Chat, len(chats))
	for i, c := range chats {
		out[i] = cloneChat(c)
	}
	return out
}
