package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickgpt/quickgpt/internal/handler/dto"
	"github.com/quickgpt/quickgpt/internal/model"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultServer, cfg.Server)
	assert.Empty(t, cfg.Token)
}

func TestConfig_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	in := &cliConfig{Server: "https://api.example.com", Token: "tok", Chat: "c1", Draft: "unsent"}
	require.NoError(t, in.save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
	_, err := loadConfig(path)
	assert.Error(t, err)
}

// fakeServer is a minimal QuickGPT API for driving the CLI.
type fakeServer struct {
	mu      sync.Mutex
	credits int64
	chats   []*model.Chat
}

func (f *fakeServer) handler() http.Handler {
	write := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	user := func() *model.User { return &model.User{ID: "u1", Name: "Ada", Email: "ada@example.com", Credits: f.credits} }

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		write(w, http.StatusOK, dto.TokenResponse{Success: true, Token: "tok", User: user()})
	})
	mux.HandleFunc("GET /api/auth/data", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		write(w, http.StatusOK, dto.UserResponse{Success: true, User: user()})
	})
	mux.HandleFunc("GET /api/chat/get", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		write(w, http.StatusOK, dto.ChatListResponse{Success: true, Chats: f.chats})
	})
	mux.HandleFunc("POST /api/chat/create", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		c := &model.Chat{ID: "c1", Name: model.DefaultChatName, Messages: []model.Message{}}
		f.chats = append(f.chats, c)
		write(w, http.StatusCreated, dto.ChatResponse{Success: true, Chat: c})
	})
	mux.HandleFunc("POST /api/message/text", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var req dto.MessageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if f.credits < 1 {
			write(w, http.StatusPaymentRequired, dto.ErrorResponse{Message: "Not enough credits", Code: "INSUFFICIENT_CREDITS"})
			return
		}
		reply := model.Message{Role: model.RoleAssistant, Content: "echo: " + req.Prompt}
		f.chats[0].Messages = append(f.chats[0].Messages, model.Message{Role: model.RoleUser, Content: req.Prompt}, reply)
		f.credits--
		write(w, http.StatusOK, dto.MessageResponse{Success: true, Reply: reply, Credits: f.credits, Cost: 1})
	})
	return mux
}

func runCLI(t *testing.T, configPath, server string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(append([]string{"--config", configPath, "--server", server}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_SendKeepsDraftOnFailure(t *testing.T) {
	fs := &fakeServer{credits: 0}
	srv := httptest.NewServer(fs.handler())
	defer srv.Close()
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := runCLI(t, path, srv.URL, "login", "--email", "ada@example.com", "--password", "pw")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as ada@example.com")

	_, err = runCLI(t, path, srv.URL, "send", "hello", "there")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not enough credits")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "hello there", cfg.Draft)
	assert.Equal(t, "c1", cfg.Chat)

	fs.mu.Lock()
	fs.credits = 3
	fs.mu.Unlock()

	out, err = runCLI(t, path, srv.URL, "send")
	require.NoError(t, err)
	assert.Contains(t, out, "gpt> echo: hello there")
	assert.Contains(t, out, "(2 credits left)")

	cfg, err = loadConfig(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Draft)

	out, err = runCLI(t, path, srv.URL, "history")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "> "))
}

func TestCLI_RequiresLogin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_, err := runCLI(t, path, "http://127.0.0.1:1", "chats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "a b", truncate("a\nb", 5))
}
