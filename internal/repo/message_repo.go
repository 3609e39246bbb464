// Package repo implements the data persistence layer for the message log,
// backed by GORM. This file provides the Message Store queries consumed by
// ingestion, the summarization pipeline, and reply ranking.
package repo

import (
	"time"

	"gorm.io/gorm"

	"github.com/ghonche/summary-bot/internal/domain"
)

// SaveMessage appends a message row. No uniqueness or referential-integrity
// checks are performed: replyTo may reference a message_id that was never
// stored, or one belonging to another chat's numbering space.
func SaveMessage(db *gorm.DB, chatID int64, username, text string, messageID int, replyTo *int) (*domain.Message, error) {
	m := &domain.Message{
		ChatID:           chatID,
		Username:         username,
		Text:             text,
		MessageID:        messageID,
		ReplyToMessageID: replyTo,
		CreatedAt:        time.Now().UTC(),
	}
	return m, db.Create(m).Error
}

// ListRecentMessages returns at most n messages for chatID in ascending
// chronological order (oldest of the window first, newest last).
//
// The underlying query fetches by id DESC LIMIT n, the cheap way to grab the
// tail of the log, and the slice is reversed before returning so callers
// always see chronological order. An empty window is an empty slice, not an
// error.
func ListRecentMessages(db *gorm.DB, chatID int64, n int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.
		Where("chat_id = ?", chatID).
		Order("id DESC").
		Limit(n).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ReplyCount is one row of the reply-popularity aggregate: a message_id and
// the number of stored messages replying to it.
type ReplyCount struct {
	MessageID  int   `gorm:"column:reply_to_message_id"`
	ReplyCount int64 `gorm:"column:reply_count"`
}

// TopRepliedTo returns up to k message ids of chatID ordered by how many
// stored messages reply to them, most replied first. Rows with a null
// reply_to_message_id are excluded from counting. Ties are broken by
// ascending message id, which keeps the ranking deterministic across runs.
func TopRepliedTo(db *gorm.DB, chatID int64, k int) ([]ReplyCount, error) {
	var out []ReplyCount
	err := db.Raw(`
		SELECT reply_to_message_id, COUNT(*) AS reply_count
		FROM messages
		WHERE reply_to_message_id IS NOT NULL AND chat_id = ?
		GROUP BY reply_to_message_id
		ORDER BY reply_count DESC, reply_to_message_id ASC
		LIMIT ?`, chatID, k).Scan(&out).Error
	return out, err
}

// GetByMessageID fetches the first stored message in chatID carrying the
// given transport message id. Returns gorm.ErrRecordNotFound when no such
// message was ever ingested.
func GetByMessageID(db *gorm.DB, chatID int64, messageID int) (*domain.Message, error) {
	var m domain.Message
	if err := db.Where("chat_id = ? AND message_id = ?", chatID, messageID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}
