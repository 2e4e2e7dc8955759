// Package client is a Go client for the QuickGPT HTTP API together with
// the state controller that keeps a local copy of the user's chats in step
// with the server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/quickgpt/quickgpt/internal/handler/dto"
	"github.com/quickgpt/quickgpt/internal/model"
)

// APIError is a failed API call. Message is the server's user-facing text.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// HasCode reports whether err is an API error with the given code.
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken starts the client with a session token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// Client calls the QuickGPT API with a bearer session token.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// New creates a Client for baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current session token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the session token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Register creates an account and keeps the returned session token.
func (c *Client) Register(ctx context.Context, name, email, password string) (*dto.TokenResponse, error) {
	var out dto.TokenResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/register", dto.RegisterRequest{Name: name, Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

// Login starts a session and keeps the returned token.
func (c *Client) Login(ctx context.Context, email, password string) (*dto.TokenResponse, error) {
	var out dto.TokenResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", dto.LoginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

// Logout revokes the session on the server and forgets the token.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var out dto.UserResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/data", nil, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// Chats lists the user's chats, most recently updated first.
func (c *Client) Chats(ctx context.Context) ([]*model.Chat, error) {
	var out dto.ChatListResponse
	if err := c.do(ctx, http.MethodGet, "/api/chat/get", nil, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

// CreateChat creates an empty chat.
func (c *Client) CreateChat(ctx context.Context) (*model.Chat, error) {
	var out dto.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat/create", nil, &out); err != nil {
		return nil, err
	}
	return out.Chat, nil
}

// DeleteChat deletes a chat owned by the user.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodPost, "/api/chat/delete", dto.ChatIDRequest{ChatID: chatID}, nil)
}

// SendMessage submits a prompt. publish only applies to image mode.
func (c *Client) SendMessage(ctx context.Context, chatID, prompt string, mode model.Mode, publish bool) (*dto.MessageResponse, error) {
	req := dto.MessageRequest{ChatID: chatID, Prompt: prompt}
	if mode == model.ModeImage {
		req.IsPublished = publish
	}
	var out dto.MessageResponse
	if err := c.do(ctx, http.MethodPost, "/api/message/"+string(mode), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PublishedImages returns the community gallery.
func (c *Client) PublishedImages(ctx context.Context) ([]model.PublishedImage, error) {
	var out dto.PublishedImagesResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/published-images", nil, &out); err != nil {
		return nil, err
	}
	return out.Images, nil
}

// Plans lists the credit plans on sale.
func (c *Client) Plans(ctx context.Context) ([]model.Plan, error) {
	var out dto.PlansResponse
	if err := c.do(ctx, http.MethodGet, "/api/credit/plan", nil, &out); err != nil {
		return nil, err
	}
	return out.Plans, nil
}

// Purchase starts a checkout for planID.
func (c *Client) Purchase(ctx context.Context, planID string) (*dto.PurchaseResponse, error) {
	var out dto.PurchaseResponse
	if err := c.do(ctx, http.MethodPost, "/api/credit/purchase", dto.PurchaseRequest{PlanID: planID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		var env dto.ErrorResponse
		if json.Unmarshal(data, &env) == nil && env.Message != "" {
			apiErr.Code = env.Code
			apiErr.Message = env.Message
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
