package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// JournalEntry is one recorded storage-chat message.
type JournalEntry struct {
	ChatID    int64
	MessageID int
	PostedAt  time.Time
	Payload   []byte
}

// JournalRepository persists the messages the bot has seen in a chat so that the
// chat history can be replayed; the Bot API offers no history call of its own.
type JournalRepository struct {
	db *sql.DB
}

func NewJournalRepository(db *sql.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

// Record inserts or replaces the message keyed by (chat, message id).
func (r *JournalRepository) Record(ctx context.Context, entry JournalEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO message_journal (chat_id, message_id, posted_at, payload, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, message_id) DO UPDATE SET
			posted_at = excluded.posted_at,
			payload = excluded.payload,
			recorded_at = excluded.recorded_at`,
		entry.ChatID, entry.MessageID, entry.PostedAt.Unix(), entry.Payload, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record message %d/%d: %w", entry.ChatID, entry.MessageID, err)
	}
	return nil
}

// Recent returns up to limit messages of chatID, newest first.
func (r *JournalRepository) Recent(ctx context.Context, chatID int64, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT chat_id, message_id, posted_at, payload
		FROM message_journal
		WHERE chat_id = ?
		ORDER BY message_id DESC
		LIMIT ?`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var (
			entry  JournalEntry
			posted int64
		)
		if err := rows.Scan(&entry.ChatID, &entry.MessageID, &posted, &entry.Payload); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		entry.PostedAt = time.Unix(posted, 0).UTC()
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return out, nil
}

// Count returns the number of journaled messages for chatID.
func (r *JournalRepository) Count(ctx context.Context, chatID int64) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM message_journal WHERE chat_id = ?`, chatID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count journal: %w", err)
	}
	return n, nil
}
