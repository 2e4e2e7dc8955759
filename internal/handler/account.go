package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/quickgpt/quickgpt/internal/auth"
	"github.com/quickgpt/quickgpt/internal/handler/dto"
	"github.com/quickgpt/quickgpt/internal/model"
	"github.com/quickgpt/quickgpt/internal/service"
)

// TokenCookie is the cookie carrying the session token.
const TokenCookie = "token"

// AccountManager registers and logs in users.
type AccountManager interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.Session, error)
	Login(ctx context.Context, email, password string) (*service.Session, error)
	Logout(ctx context.Context, ac *model.AuthContext) error
}

// AccountHandler handles the /api/auth endpoints.
type AccountHandler struct {
	svc          AccountManager
	logger       *slog.Logger
	secureCookie bool
}

// NewAccountHandler creates a new AccountHandler. secureCookie marks the
// session cookie Secure and should be set outside development.
func NewAccountHandler(svc AccountManager, logger *slog.Logger, secureCookie bool) *AccountHandler {
	return &AccountHandler{svc: svc, logger: logger, secureCookie: secureCookie}
}

// Register handles POST /api/auth/register.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	sess, err := h.svc.Register(r.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.setCookie(w, sess.Token, sess.ExpiresAt)
	writeJSON(w, http.StatusCreated, tokenResponse(sess))
}

// Login handles POST /api/auth/login.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	sess, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.setCookie(w, sess.Token, sess.ExpiresAt)
	writeJSON(w, http.StatusOK, tokenResponse(sess))
}

// Logout handles POST /api/auth/logout.
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), auth.AuthFromContext(r.Context())); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.setCookie(w, "", time.Unix(0, 0))
	writeJSON(w, http.StatusOK, dto.OKResponse{Success: true, Message: "Logged out"})
}

// Data handles GET /api/auth/data.
func (h *AccountHandler) Data(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authorized")
		return
	}
	writeJSON(w, http.StatusOK, dto.UserResponse{Success: true, User: user})
}

func (h *AccountHandler) setCookie(w http.ResponseWriter, token string, expires time.Time) {
	c := &http.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if token == "" {
		c.MaxAge = -1
	}
	http.SetCookie(w, c)
}

func tokenResponse(sess *service.Session) dto.TokenResponse {
	return dto.TokenResponse{
		Success:   true,
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		User:      sess.User,
	}
}
