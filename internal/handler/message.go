package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/quickgpt/quickgpt/internal/auth"
	"github.com/quickgpt/quickgpt/internal/handler/dto"
	"github.com/quickgpt/quickgpt/internal/model"
	"github.com/quickgpt/quickgpt/internal/service"
)

// MessageProcessor runs a prompt end to end.
type MessageProcessor interface {
	Handle(ctx context.Context, req service.MessageRequest) (*service.MessageResult, error)
}

// MessageHandler handles prompt submission.
type MessageHandler struct {
	svc    MessageProcessor
	logger *slog.Logger
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(svc MessageProcessor, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{svc: svc, logger: logger}
}

// Text handles POST /api/message/text.
func (h *MessageHandler) Text(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, model.ModeText)
}

// Image handles POST /api/message/image.
func (h *MessageHandler) Image(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, model.ModeImage)
}

func (h *MessageHandler) handle(w http.ResponseWriter, r *http.Request, mode model.Mode) {
	var req dto.MessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	res, err := h.svc.Handle(r.Context(), service.MessageRequest{
		UserID:  auth.UserIDFromContext(r.Context()),
		ChatID:  req.ChatID,
		Prompt:  req.Prompt,
		Mode:    mode,
		Publish: mode.IsImage() && req.IsPublished,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	var charged int64
	if res.Debited {
		charged = res.Cost
	}
	writeJSON(w, http.StatusOK, dto.MessageResponse{
		Success: true,
		Reply:   res.Reply,
		Credits: res.Credits,
		Cost:    charged,
	})
}
