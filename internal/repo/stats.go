// Package repo implements the data persistence layer for the message log,
// backed by GORM. This file provides small aggregate queries used by the
// /stats bot command. Each function is context-aware and safe to call from
// services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ghonche/summary-bot/internal/domain"
)

// MessageStats returns aggregate metadata for a chat's message log: the total
// number of stored messages and the timestamp of the newest one.
//
// When the chat has no messages, the returned count is 0 and lastAt is nil.
//
// Return values:
//   - count:  total messages for chatID
//   - lastAt: pointer to the newest CreatedAt, or nil if no rows
//   - err:    database error, if any
func MessageStats(ctx context.Context, db *gorm.DB, chatID int64) (count int64, lastAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("chat_id = ?", chatID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Newest row by insertion order (avoid MAX() -> TEXT in SQLite).
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("id DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
