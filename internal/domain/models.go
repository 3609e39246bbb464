// Package domain defines the persistence model for chat messages. The single
// Message type is mapped with GORM and forms the append-only log that the
// summarization pipeline and reply ranking read from.
package domain

import "time"

// Message represents one persisted chat utterance. Messages are created once
// at ingestion time from an incoming Telegram update and are never mutated or
// deleted by the application.
//
// Fields:
//   - ID: store-assigned auto-increment key; its only job is to give a strict
//     chronological order for retrieval. Unrelated to MessageID.
//   - ChatID: identifier of the conversation, assigned by Telegram. Stable;
//     negative for groups, "-100…" prefixed for supergroups/channels.
//   - Username: display identity of the author. May be empty; the "anonymous"
//     placeholder is substituted at formatting time, never at storage time.
//   - Text: raw message content. Empty or non-text messages are not stored.
//   - MessageID: Telegram's conversation-scoped sequence number. Only unique
//     within one ChatID, so lookups always pair it with ChatID.
//   - ReplyToMessageID: MessageID of the message this one replies to, within
//     the same chat. Nil means "not a reply". The referenced id is not
//     validated and may point at a message that was never stored.
type Message struct {
	ID               int64     `json:"id"                  gorm:"primaryKey;autoIncrement"`
	ChatID           int64     `json:"chat_id"             gorm:"not null;index:idx_chat_messages"`
	Username         string    `json:"username"            gorm:"type:varchar(64)"`
	Text             string    `json:"text"                gorm:"type:text;not null"`
	MessageID        int       `json:"message_id"          gorm:"not null"`
	ReplyToMessageID *int      `json:"reply_to_message_id,omitempty" gorm:"index:idx_chat_replies"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }
