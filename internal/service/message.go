package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/quickgpt/quickgpt/internal/metrics"
	"github.com/quickgpt/quickgpt/internal/model"
	"github.com/quickgpt/quickgpt/internal/provider"
	"github.com/quickgpt/quickgpt/internal/repository"
)

// MaxPromptLength bounds a single prompt, in characters.
const MaxPromptLength = 4000

// MessageRequest is one prompt submitted against a chat.
type MessageRequest struct {
	UserID  string
	ChatID  string
	Prompt  string
	Mode    model.Mode
	Publish bool
}

// MessageResult is the outcome of a handled request.
type MessageResult struct {
	Reply   model.Message
	Cost    int64
	Credits int64 // balance after the request
	Debited bool
	State   model.RequestState
}

// MessageServiceConfig tunes the orchestrator.
type MessageServiceConfig struct {
	GenerationTimeout time.Duration
	HoldTTL           time.Duration
}

// MessageService runs a prompt through credit check, generation,
// persistence and debit.
type MessageService struct {
	chats      ChatStore
	ledger     Ledger
	generators GeneratorResolver
	gallery    GalleryCache
	cfg        MessageServiceConfig
	logger     *slog.Logger
	metrics    metrics.Recorder
	now        func() time.Time
}

// NewMessageService creates a new MessageService. gallery may be nil.
func NewMessageService(
	chats ChatStore,
	ledger Ledger,
	generators GeneratorResolver,
	gallery GalleryCache,
	cfg MessageServiceConfig,
	logger *slog.Logger,
	recorder metrics.Recorder,
) *MessageService {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 60 * time.Second
	}
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = repository.DefaultHoldTTL
	}
	return &MessageService{
		chats:      chats,
		ledger:     ledger,
		generators: generators,
		gallery:    gallery,
		cfg:        cfg,
		logger:     logger,
		metrics:    recorder,
		now:        time.Now,
	}
}

// ValidateMessageRequest checks a request before any side effect.
func ValidateMessageRequest(req MessageRequest) error {
	if _, err := model.ParseMode(string(req.Mode)); err != nil {
		return ErrInvalidMode
	}
	if strings.TrimSpace(req.Prompt) == "" || utf8.RuneCountInString(req.Prompt) > MaxPromptLength {
		return ErrInvalidPrompt
	}
	if req.ChatID == "" {
		return ErrChatNotFound
	}
	return nil
}

// Handle processes one prompt. Side effects happen in this order: user
// message persisted, provider call, assistant message persisted, credits
// debited. The result is returned only after all of them complete.
//
// Work continues if the caller goes away; only the generation timeout
// bounds the provider call.
func (s *MessageService) Handle(ctx context.Context, req MessageRequest) (*MessageResult, error) {
	ctx = context.WithoutCancel(ctx)
	state := model.StateReceived

	res, err := s.handle(ctx, req, &state)
	status := statusFor(err)
	s.metrics.IncMessageHandled(string(req.Mode), status)

	if err != nil {
		s.logger.Warn("message_failed",
			"user_id", req.UserID,
			"chat_id", req.ChatID,
			"mode", req.Mode,
			"failed_at", state,
			"error", err,
		)
		return nil, err
	}

	res.State = model.StateResponded
	s.logger.Info("message_handled",
		"user_id", req.UserID,
		"chat_id", req.ChatID,
		"mode", req.Mode,
		"cost", res.Cost,
		"credits", res.Credits,
		"debited", res.Debited,
	)
	return res, nil
}

func (s *MessageService) handle(ctx context.Context, req MessageRequest, state *model.RequestState) (*MessageResult, error) {
	if err := ValidateMessageRequest(req); err != nil {
		return nil, err
	}

	gen, err := s.generators.Resolve(req.Mode)
	if err != nil {
		return nil, ErrModeUnavailable
	}
	cost := req.Mode.Cost()

	if _, err := s.chats.GetChat(ctx, req.ChatID, req.UserID); err != nil {
		return nil, mapChatError(err)
	}

	hold, err := s.ledger.Reserve(ctx, req.UserID, cost, s.cfg.HoldTTL)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientCredits) {
			return nil, ErrInsufficientCredits
		}
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("reserve credits: %w", err)
	}
	*state = model.StateCreditChecked

	// The prompt is kept even if generation fails.
	userMsg := model.NewUserMessage(req.Prompt, s.now().UTC())
	if err := s.chats.AppendMessage(ctx, req.ChatID, req.UserID, userMsg); err != nil {
		s.release(ctx, hold)
		return nil, mapChatError(err)
	}

	*state = model.StateGenerating
	out, err := s.generate(ctx, gen, req.Prompt)
	if err != nil {
		s.release(ctx, hold)
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	*state = model.StatePersisting
	reply := model.Message{
		Role:        model.RoleAssistant,
		Content:     out.Content,
		IsImage:     out.IsImage,
		IsPublished: out.IsImage && req.Publish,
		Timestamp:   s.now().UTC(),
	}
	if err := s.chats.AppendMessage(ctx, req.ChatID, req.UserID, reply); err != nil {
		s.release(ctx, hold)
		return nil, mapChatError(err)
	}

	res := &MessageResult{Reply: reply, Cost: cost}

	balance, err := s.ledger.Commit(ctx, hold)
	if err != nil {
		// The reply is already persisted. Return it and leave the missed
		// debit in the log for repair.
		s.logger.Error("credit_debit_failed",
			"user_id", req.UserID,
			"chat_id", req.ChatID,
			"hold_id", hold.ID,
			"amount", cost,
			"error", err,
		)
		if b, berr := s.ledger.Balance(ctx, req.UserID); berr == nil {
			res.Credits = b
		}
	} else {
		*state = model.StateDebited
		res.Debited = true
		res.Credits = balance
		s.metrics.AddCreditsDebited(cost)
	}

	if reply.IsPublished && s.gallery != nil {
		if err := s.gallery.InvalidatePublishedImages(ctx); err != nil {
			s.logger.Warn("gallery_invalidate_failed", "error", err)
		}
	}

	return res, nil
}

func (s *MessageService) generate(ctx context.Context, gen provider.Generator, prompt string) (*provider.Output, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GenerationTimeout)
	defer cancel()

	start := s.now()
	out, err := gen.Generate(ctx, prompt)
	s.metrics.ObserveGenerationDuration(string(gen.Mode()), s.now().Sub(start))
	return out, err
}

func (s *MessageService) release(ctx context.Context, hold *model.CreditHold) {
	if err := s.ledger.Release(ctx, hold); err != nil {
		// The hold expires on its own.
		s.logger.Warn("credit_release_failed", "hold_id", hold.ID, "error", err)
	}
}

func mapChatError(err error) error {
	if errors.Is(err, repository.ErrChatNotFound) {
		return ErrChatNotFound
	}
	return fmt.Errorf("chat store: %w", err)
}

func statusFor(err error) string {
	switch {
	case err == nil:
		return metrics.StatusSuccess
	case errors.Is(err, ErrInsufficientCredits):
		return metrics.StatusInsufficientCredits
	case errors.Is(err, ErrChatNotFound):
		return metrics.StatusChatNotFound
	case errors.Is(err, ErrProvider):
		return metrics.StatusProviderError
	case errors.Is(err, ErrInvalidPrompt), errors.Is(err, ErrInvalidMode), errors.Is(err, ErrModeUnavailable):
		return metrics.StatusInvalid
	default:
		return metrics.StatusFailed
	}
}
