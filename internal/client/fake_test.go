package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quickgpt/quickgpt/internal/handler/dto"
	"github.com/quickgpt/quickgpt/internal/model"
)

// fakeAPI is an in-memory server. It hands out copies so the controller
// never shares memory with it.
type fakeAPI struct {
	mu      sync.Mutex
	user    model.User
	chats   []*model.Chat
	nextID  int
	sendErr error
	listErr error

	chatCalls atomic.Int32
	// listGate, when set, blocks Chats until closed.
	listGate chan struct{}
	// hold, when set, makes the next Chats call take its snapshot, close
	// hold.taken and wait for hold.release before returning.
	hold *listHold
	// beforeSend runs before SendMessage touches the server state.
	beforeSend func(prompt string)
	// afterSend runs once SendMessage has updated the server state and
	// before the response is returned.
	afterSend func(prompt string)
}

type listHold struct {
	taken   chan struct{}
	release chan struct{}
}

// holdNextList arms a one-shot hold on the next Chats call.
func (f *fakeAPI) holdNextList() *listHold {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = &listHold{taken: make(chan struct{}), release: make(chan struct{})}
	return f.hold
}

func newFakeAPI(credits int64) *fakeAPI {
	return &fakeAPI{user: model.User{ID: "u1", Name: "Ada", Email: "ada@example.com", Credits: credits}}
}

func (f *fakeAPI) addChat(name string, msgs ...string) *model.Chat {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c := &model.Chat{ID: fmt.Sprintf("c%d", f.nextID), UserID: f.user.ID, Name: name, UpdatedAt: time.Now()}
	for _, m := range msgs {
		c.Messages = append(c.Messages, model.Message{Role: model.RoleUser, Content: m})
	}
	f.chats = append([]*model.Chat{c}, f.chats...)
	return cloneChat(c)
}

func (f *fakeAPI) Me(ctx context.Context) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.user
	return &u, nil
}

func (f *fakeAPI) Chats(ctx context.Context) ([]*model.Chat, error) {
	f.chatCalls.Add(1)
	if f.listGate != nil {
		select {
		case <-f.listGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	if f.listErr != nil {
		f.mu.Unlock()
		return nil, f.listErr
	}
	snapshot := cloneChats(f.chats)
	hold := f.hold
	f.hold = nil
	f.mu.Unlock()

	if hold != nil {
		close(hold.taken)
		<-hold.release
	}
	return snapshot, nil
}

func (f *fakeAPI) CreateChat(ctx context.Context) (*model.Chat, error) {
	return f.addChat(model.DefaultChatName), nil
}

func (f *fakeAPI) DeleteChat(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.chats {
		if c.ID == chatID {
			f.chats = append(f.chats[:i], f.chats[i+1:]...)
			return nil
		}
	}
	return &APIError{Status: 404, Code: "CHAT_NOT_FOUND", Message: "Chat not found"}
}

func (f *fakeAPI) SendMessage(ctx context.Context, chatID, prompt string, mode model.Mode, publish bool) (*dto.MessageResponse, error) {
	if f.beforeSend != nil {
		f.beforeSend(prompt)
	}
	resp, err := f.send(chatID, prompt, mode)
	if err == nil && f.afterSend != nil {
		f.afterSend(prompt)
	}
	return resp, err
}

func (f *fakeAPI) send(chatID, prompt string, mode model.Mode) (*dto.MessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	var chat *model.Chat
	for _, c := range f.chats {
		if c.ID == chatID {
			chat = c
		}
	}
	if chat == nil {
		return nil, &APIError{Status: 404, Code: "CHAT_NOT_FOUND", Message: "Chat not found"}
	}
	if f.user.Credits < mode.Cost() {
		return nil, &APIError{Status: 402, Code: "INSUFFICIENT_CREDITS", Message: "Not enough credits"}
	}
	reply := model.Message{Role: model.RoleAssistant, Content: "echo: " + prompt, IsImage: mode == model.ModeImage}
	chat.Messages = append(chat.Messages, model.NewUserMessage(prompt, time.Now()), reply)
	f.user.Credits -= mode.Cost()
	return &dto.MessageResponse{Success: true, Reply: reply, Credits: f.user.Credits, Cost: mode.Cost()}, nil
}
