// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/quickgpt/quickgpt/internal/model"
)

// Every response body carries "success". Failures add message and code.

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// OKResponse is a bare success acknowledgement.
type OKResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// MessageRequest is the body of POST /api/message/{text,image}.
type MessageRequest struct {
	ChatID      string `json:"chatId"`
	Prompt      string `json:"prompt"`
	IsPublished bool   `json:"isPublished,omitempty"`
}

// MessageResponse carries the assistant reply. Cost is what this request
// debited; clients apply it as a delta to their cached balance.
type MessageResponse struct {
	Success bool          `json:"success"`
	Reply   model.Message `json:"reply"`
	Credits int64         `json:"credits"`
	Cost    int64         `json:"cost"`
}

// ChatIDRequest names a chat.
type ChatIDRequest struct {
	ChatID string `json:"chatId"`
}

// ChatResponse carries a single chat.
type ChatResponse struct {
	Success bool        `json:"success"`
	Chat    *model.Chat `json:"chat"`
}

// ChatListResponse carries the caller's chats, most recent first.
type ChatListResponse struct {
	Success bool          `json:"success"`
	Chats   []*model.Chat `json:"chats"`
}

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned after register and login.
type TokenResponse struct {
	Success   bool        `json:"success"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      *model.User `json:"user"`
}

// UserResponse carries the authenticated user.
type UserResponse struct {
	Success bool        `json:"success"`
	User    *model.User `json:"user"`
}

// PublishedImagesResponse carries the community gallery.
type PublishedImagesResponse struct {
	Success bool                   `json:"success"`
	Images  []model.PublishedImage `json:"images"`
}

// PlansResponse lists the credit plans.
type PlansResponse struct {
	Success bool         `json:"success"`
	Plans   []model.Plan `json:"plans"`
}

// PurchaseRequest is the body of POST /api/credit/purchase.
type PurchaseRequest struct {
	PlanID string `json:"planId"`
}

// PurchaseResponse points the caller at the checkout page.
type PurchaseResponse struct {
	Success       bool   `json:"success"`
	URL           string `json:"url"`
	TransactionID string `json:"transactionId"`
}

// WebhookResponse acknowledges a payment notification.
type WebhookResponse struct {
	Success  bool `json:"success"`
	Received bool `json:"received"`
	Applied  bool `json:"applied"`
}
