package db

import (
	"context"

	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/models"
	"github.com/smarttourjo/core/internal/uuid"
)

// DefaultChatLimit bounds ListChatMessages when no limit is given.
const DefaultChatLimit = 50

type chatRepo struct{ c conn }

// SaveChatMessage appends a message to the history.
func (r *chatRepo) SaveChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg.Type != models.ChatUser && msg.Type != models.ChatBot {
		return apperrors.New(apperrors.ErrInvalid, "invalid chat message type: "+msg.Type)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewPrefixed(uuid.PrefixChat)
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = r.c.now().UnixMilli()
	}

	query := `INSERT OR REPLACE INTO chat_messages (id, text, type, timestamp, synced) VALUES (?, ?, ?, ?, ?)`
	if _, err := r.c.q.ExecContext(ctx, query, msg.ID, msg.Text, msg.Type, msg.Timestamp, boolToInt(msg.Synced)); err != nil {
		return dbError("failed to save chat message", err)
	}
	return nil
}

// ListChatMessages returns the latest limit messages in chronological order.
func (r *chatRepo) ListChatMessages(ctx context.Context, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultChatLimit
	}

	query := `
	SELECT id, text, type, timestamp, synced FROM (
		SELECT id, text, type, timestamp, synced FROM chat_messages
		ORDER BY timestamp DESC LIMIT ?
	) ORDER BY timestamp ASC`

	rows, err := r.c.q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, dbError("failed to list chat messages", err)
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		var synced int
		if err := rows.Scan(&m.ID, &m.Text, &m.Type, &m.Timestamp, &synced); err != nil {
			return nil, dbError("failed to scan chat message", err)
		}
		m.Synced = synced != 0
		out = append(out, m)
	}
	return out, rows.Err()
}
