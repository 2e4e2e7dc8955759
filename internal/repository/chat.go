package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
	"github.com/quickgpt/quickgpt/internal/model"
)

// ErrChatNotFound is returned when a chat does not exist or belongs to
// another user.
var ErrChatNotFound = errors.New("chat not found")

// CreateChat inserts an empty chat.
func (r *Repository) CreateChat(ctx context.Context, chat *model.Chat) error {
	query := `
		INSERT INTO chats (id, user_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		chat.ID,
		chat.UserID,
		chat.Name,
		chat.CreatedAt,
		chat.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

// GetChat retrieves a chat owned by userID together with its messages.
func (r *Repository) GetChat(ctx context.Context, chatID, userID string) (*model.Chat, error) {
	query := `
		SELECT id, user_id, name, created_at, updated_at
		FROM chats
		WHERE id = $1 AND user_id = $2
	`

	var chat model.Chat
	err := r.pool.QueryRow(ctx, query, chatID, userID).Scan(
		&chat.ID,
		&chat.UserID,
		&chat.Name,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}

	chats := []*model.Chat{&chat}
	if err := r.loadMessages(ctx, chats); err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListChatsByUser returns the user's chats, most recently updated first,
// each with its full message history in append order.
func (r *Repository) ListChatsByUser(ctx context.Context, userID string) ([]*model.Chat, error) {
	query := `
		SELECT id, user_id, name, created_at, updated_at
		FROM chats
		WHERE user_id = $1
		ORDER BY updated_at DESC, id DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	chats := make([]*model.Chat, 0)
	for rows.Next() {
		var chat model.Chat
		if err := rows.Scan(
			&chat.ID,
			&chat.UserID,
			&chat.Name,
			&chat.CreatedAt,
			&chat.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, &chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chats: %w", err)
	}

	if err := r.loadMessages(ctx, chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// loadMessages fills the message slices of chats with one query.
func (r *Repository) loadMessages(ctx context.Context, chats []*model.Chat) error {
	if len(chats) == 0 {
		return nil
	}

	ids := make([]string, len(chats))
	byID := make(map[string]*model.Chat, len(chats))
	for i, c := range chats {
		ids[i] = c.ID
		c.Messages = make([]model.Message, 0)
		byID[c.ID] = c
	}

	query := `
		SELECT chat_id, role, content, is_image, is_published, created_at
		FROM messages
		WHERE chat_id = ANY($1)
		ORDER BY chat_id, seq
	`

	rows, err := r.pool.Query(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			chatID string
			msg    model.Message
			role   string
		)
		if err := rows.Scan(&chatID, &role, &msg.Content, &msg.IsImage, &msg.IsPublished, &msg.Timestamp); err != nil {
			return fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = model.Role(role)
		if c, ok := byID[chatID]; ok {
			c.Messages = append(c.Messages, msg)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate messages: %w", err)
	}
	return nil
}

// AppendMessage adds msg to the end of a chat owned by userID. The
// ownership check and the insert are one statement, so a foreign or
// missing chat is never written to.
func (r *Repository) AppendMessage(ctx context.Context, chatID, userID string, msg model.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	return r.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO messages (chat_id, role, content, is_image, is_published, created_at)
			SELECT id, $3, $4, $5, $6, $7
			FROM chats
			WHERE id = $1 AND user_id = $2
		`, chatID, userID, string(msg.Role), msg.Content, msg.IsImage, msg.IsPublished, msg.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to append message: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrChatNotFound
		}

		if _, err := tx.Exec(ctx, `UPDATE chats SET updated_at = $2 WHERE id = $1`, chatID, msg.Timestamp); err != nil {
			return fmt.Errorf("failed to touch chat: %w", err)
		}
		return nil
	})
}

// DeleteChat removes a chat owned by userID. Its messages go with it.
func (r *Repository) DeleteChat(ctx context.Context, chatID, userID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM chats WHERE id = $1 AND user_id = $2`, chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChatNotFound
	}
	return nil
}

// ListPublishedImages returns published generated images across all
// users, newest first.
func (r *Repository) ListPublishedImages(ctx context.Context, limit int) ([]model.PublishedImage, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT m.content, u.name, m.created_at
		FROM messages m
		JOIN chats c ON c.id = m.chat_id
		JOIN users u ON u.id = c.user_id
		WHERE m.is_image AND m.is_published AND m.role = 'assistant'
		ORDER BY m.created_at DESC, m.seq DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list published images: %w", err)
	}
	defer rows.Close()

	images := make([]model.PublishedImage, 0)
	for rows.Next() {
		var img model.PublishedImage
		if err := rows.Scan(&img.ImageURL, &img.UserName, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan published image: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate published images: %w", err)
	}
	return images, nil
}
