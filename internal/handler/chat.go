package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/quickgpt/quickgpt/internal/auth"
	"github.com/quickgpt/quickgpt/internal/handler/dto"
	"github.com/quickgpt/quickgpt/internal/model"
)

// ChatManager creates, lists and deletes chats.
type ChatManager interface {
	CreateChat(ctx context.Context, userID string) (*model.Chat, error)
	ListChats(ctx context.Context, userID string) ([]*model.Chat, error)
	DeleteChat(ctx context.Context, chatID, userID string) error
}

// ChatHandler handles chat lifecycle requests.
type ChatHandler struct {
	svc    ChatManager
	logger *slog.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(svc ChatManager, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger}
}

// Create handles POST /api/chat/create.
func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	chat, err := h.svc.CreateChat(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.ChatResponse{Success: true, Chat: chat})
}

// List handles GET /api/chat/get.
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	chats, err := h.svc.ListChats(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ChatListResponse{Success: true, Chats: chats})
}

// Delete handles POST /api/chat/delete.
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req dto.ChatIDRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := h.svc.DeleteChat(r.Context(), req.ChatID, auth.UserIDFromContext(r.Context())); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.OKResponse{Success: true, Message: "Chat deleted"})
}
