package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/quickgpt/quickgpt/internal/metrics"
	"github.com/quickgpt/quickgpt/internal/model"
)

// ChatService handles chat lifecycle.
type ChatService struct {
	chats   ChatStore
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewChatService creates a new ChatService.
func NewChatService(chats ChatStore, logger *slog.Logger, recorder metrics.Recorder) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ChatService{chats: chats, logger: logger, metrics: recorder}
}

// CreateChat starts an empty chat with the default name.
func (s *ChatService) CreateChat(ctx context.Context, userID string) (*model.Chat, error) {
	now := time.Now().UTC()
	chat := &model.Chat{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Name:      model.DefaultChatName,
		Messages:  []model.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.chats.CreateChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	s.metrics.IncChatCreated()
	s.logger.Info("chat_created", "user_id", userID, "chat_id", chat.ID)
	return chat, nil
}

// ListChats returns the user's chats, most recently updated first.
func (s *ChatService) ListChats(ctx context.Context, userID string) ([]*model.Chat, error) {
	chats, err := s.chats.ListChatsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return chats, nil
}

// DeleteChat removes a chat owned by userID.
func (s *ChatService) DeleteChat(ctx context.Context, chatID, userID string) error {
	if chatID == "" {
		return ErrChatNotFound
	}
	if err := s.chats.DeleteChat(ctx, chatID, userID); err != nil {
		return mapChatError(err)
	}

	s.metrics.IncChatDeleted()
	s.logger.Info("chat_deleted", "user_id", userID, "chat_id", chatID)
	return nil
}
