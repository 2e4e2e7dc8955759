package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickgpt/quickgpt/internal/handler/dto"
	"github.com/quickgpt/quickgpt/internal/model"
)

func newTestServer(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", WithHTTPClient(srv.Client()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_LoginKeepsToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req dto.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "correct horse" {
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Message: "Invalid email or password", Code: "INVALID_CREDENTIALS"})
			return
		}
		writeJSON(w, http.StatusOK, dto.TokenResponse{Success: true, Token: "tok-1", User: &model.User{ID: "u1"}})
	})
	mux.HandleFunc("GET /api/auth/data", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Message: "Not authorized", Code: "UNAUTHORIZED"})
			return
		}
		writeJSON(w, http.StatusOK, dto.UserResponse{Success: true, User: &model.User{ID: "u1", Credits: 20}})
	})
	c := newTestServer(t, mux)
	ctx := context.Background()

	_, err := c.Me(ctx)
	assert.True(t, IsUnauthorized(err))

	_, err = c.Login(ctx, "ada@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, HasCode(err, "INVALID_CREDENTIALS"))
	assert.Empty(t, c.Token())

	_, err = c.Login(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", c.Token())

	user, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), user.Credits)
}

func TestClient_SendMessage(t *testing.T) {
	tests := []struct {
		name        string
		mode        model.Mode
		publish     bool
		wantPath    string
		wantPublish bool
	}{
		{"text ignores publish", model.ModeText, true, "/api/message/text", false},
		{"image keeps publish", model.ModeImage, true, "/api/message/image", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			var got dto.MessageRequest
			mux := http.NewServeMux()
			mux.HandleFunc("POST /api/message/", func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				writeJSON(w, http.StatusOK, dto.MessageResponse{
					Success: true,
					Reply:   model.Message{Role: model.RoleAssistant, Content: "ok"},
					Credits: 3,
					Cost:    tt.mode.Cost(),
				})
			})
			c := newTestServer(t, mux)

			resp, err := c.SendMessage(context.Background(), "c1", "draw a cat", tt.mode, tt.publish)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, gotPath)
			assert.Equal(t, "c1", got.ChatID)
			assert.Equal(t, tt.wantPublish, got.IsPublished)
			assert.Equal(t, int64(3), resp.Credits)
		})
	}
}

func TestClient_ErrorWithoutEnvelope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chat/get", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	})
	c := newTestServer(t, mux)

	_, err := c.Chats(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), apiErr.Message)
}

func TestClient_DrivesSyncController(t *testing.T) {
	chats := []*model.Chat{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/data", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, dto.UserResponse{Success: true, User: &model.User{ID: "u1", Credits: 1}})
	})
	mux.HandleFunc("GET /api/chat/get", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, dto.ChatListResponse{Success: true, Chats: chats})
	})
	mux.HandleFunc("POST /api/chat/create", func(w http.ResponseWriter, r *http.Request) {
		chat := &model.Chat{ID: "c1", Name: model.DefaultChatName, Messages: []model.Message{}}
		chats = append(chats, chat)
		writeJSON(w, http.StatusCreated, dto.ChatResponse{Success: true, Chat: chat})
	})
	mux.HandleFunc("POST /api/message/image", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusPaymentRequired, dto.ErrorResponse{Message: "Not enough credits", Code: "INSUFFICIENT_CREDITS"})
	})
	c := newTestServer(t, mux)
	c.SetToken("tok")

	s := NewSyncController(c, quietLogger)
	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, "c1", s.State().SelectedChatID)

	_, err := s.Submit(context.Background(), "a red fox", model.ModeImage, true)
	var subErr *SubmitError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "a red fox", subErr.Draft)
	assert.True(t, HasCode(err, "INSUFFICIENT_CREDITS"))
	assert.Len(t, s.ActiveMessages(), 1)
}
