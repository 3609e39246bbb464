package repo

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ghonche/summary-bot/internal/domain"
)

func newMessageRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("message_repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func intPtr(v int) *int { return &v }

func TestSaveMessage_Error_NoTable(t *testing.T) {
	db := newMessageRepoDB(t /* no migrations */)
	if _, err := SaveMessage(db, 1, "u", "hi", 10, nil); err == nil {
		t.Fatalf("expected error saving without table")
	}
}

func TestSaveMessage_PersistsFields(t *testing.T) {
	db := newMessageRepoDB(t, &domain.Message{})

	start := time.Now().UTC().Add(-time.Minute)
	m, err := SaveMessage(db, -100500, "alice", "hello world", 42, intPtr(7))
	if err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	if m.ID == 0 {
		t.Fatalf("ID not assigned: %+v", m)
	}
	if m.ChatID != -100500 || m.Username != "alice" || m.Text != "hello world" || m.MessageID != 42 {
		t.Fatalf("unexpected fields: %+v", m)
	}
	if m.ReplyToMessageID == nil || *m.ReplyToMessageID != 7 {
		t.Fatalf("reply_to not persisted: %+v", m.ReplyToMessageID)
	}
	if m.CreatedAt.Before(start) {
		t.Fatalf("CreatedAt not set: %v", m.CreatedAt)
	}

	var got domain.Message
	if err := db.First(&got, m.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Text != "hello world" {
		t.Fatalf("reload mismatch: %+v", got)
	}
}

func TestListRecentMessages_TailInChronologicalOrder(t *testing.T) {
	db := newMessageRepoDB(t, &domain.Message{})

	for i := 1; i <= 10; i++ {
		if _, err := SaveMessage(db, 1, "u", fmt.Sprintf("m%d", i), i, nil); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
	// Another chat must never bleed into the window.
	if _, err := SaveMessage(db, 2, "other", "noise", 99, nil); err != nil {
		t.Fatalf("seed other chat: %v", err)
	}

	got, err := ListRecentMessages(db, 1, 4)
	if err != nil {
		t.Fatalf("ListRecentMessages: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	for i, want := range []string{"m7", "m8", "m9", "m10"} {
		if got[i].Text != want {
			t.Errorf("got[%d].Text = %q, want %q", i, got[i].Text, want)
		}
	}
}

func TestListRecentMessages_WindowLargerThanLog(t *testing.T) {
	db := newMessageRepoDB(t, &domain.Message{})
	for i := 1; i <= 3; i++ {
		if _, err := SaveMessage(db, 1, "u", fmt.Sprintf("m%d", i), i, nil); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	got, err := ListRecentMessages(db, 1, 100)
	if err != nil {
		t.Fatalf("ListRecentMessages: %v", err)
	}
	if len(got) != 3 || got[0].Text != "m1" || got[2].Text != "m3" {
		t.Fatalf("unexpected window: %+v", got)
	}
}

func TestListRecentMessages_EmptyChat(t *testing.T) {
	db := newMessageRepoDB(t, &domain.Message{})
	got, err := ListRecentMessages(db, 42, 10)
	if err != nil {
		t.Fatalf("ListRecentMessages: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty slice, got %+v", got)
	}
}

func TestTopRepliedTo_RankingAndTieBreak(t *testing.T) {
	db := newMessageRepoDB(t, &domain.Message{})

	// Message 1 gets three replies, messages 2 and 3 get two each (tie),
	// message 4 gets one. Non-reply rows must not count.
	seed := []struct {
		messageID int
		replyTo   *int
	}{
		{1, nil}, {2, nil}, {3, nil}, {4, nil},
		{10, intPtr(1)}, {11, intPtr(1)}, {12, intPtr(1)},
		{13, intPtr(3)}, {14, intPtr(3)},
		{15, intPtr(2)}, {16, intPtr(2)},
		{17, intPtr(4)},
	}
	for _, s := range seed {
		if _, err := SaveMessage(db, 1, "u", "t", s.messageID, s.replyTo); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	// Replies in another chat must not count either.
	if _, err := SaveMessage(db, 2, "u", "t", 50, intPtr(1)); err != nil {
		t.Fatalf("seed other chat: %v", err)
	}

	got, err := TopRepliedTo(db, 1, 3)
	if err != nil {
		t.Fatalf("TopRepliedTo: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	want := []ReplyCount{
		{MessageID: 1, ReplyCount: 3},
		{MessageID: 2, ReplyCount: 2}, // ties break on ascending message id
		{MessageID: 3, ReplyCount: 2},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestTopRepliedTo_EmptyWithoutReplies(t *testing.T) {
	db := newMessageRepoDB(t, &domain.Message{})
	if _, err := SaveMessage(db, 1, "u", "t", 1, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := TopRepliedTo(db, 1, 5)
	if err != nil {
		t.Fatalf("TopRepliedTo: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no rows, got %+v", got)
	}
}

func TestGetByMessageID(t *testing.T) {
	db := newMessageRepoDB(t, &domain.Message{})
	if _, err := SaveMessage(db, 1, "alice", "found me", 42, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}

	m, err := GetByMessageID(db, 1, 42)
	if err != nil {
		t.Fatalf("GetByMessageID: %v", err)
	}
	if m.Text != "found me" || m.Username != "alice" {
		t.Fatalf("unexpected message: %+v", m)
	}

	if _, err := GetByMessageID(db, 1, 999); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("want ErrRecordNotFound, got %v", err)
	}
	// Same transport id in a different chat is a different message.
	if _, err := GetByMessageID(db, 2, 42); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("want ErrRecordNotFound across chats, got %v", err)
	}
}
