// Package bot contains the Telegram transport layer.
//
// This file implements a lightweight, in-memory, token-bucket limiter with
// per-chat buckets and opportunistic garbage collection. It throttles the
// /summary command, which fans out into paid generation calls, so a single
// chat cannot hammer the external service.
//
// Notes:
//   - The limiter is process-local; this bot is a single-process deployment.
//   - It is cost protection, not an authorization mechanism.
package bot

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// bucket holds a single rate limiter and the last time it was used, so idle
// chats can be evicted.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// chatLimiter implements a per-chat token-bucket rate limiter.
//
// Buckets are created on demand and stored in a map guarded by a mutex. Idle
// buckets are evicted after a TTL via opportunistic cleanup during lookups to
// keep memory usage bounded. Safe for concurrent use.
type chatLimiter struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[int64]*bucket

	ttl     time.Duration
	lookups uint64
}

// newChatLimiter constructs a chatLimiter with the given tokens-per-second
// and burst size. burst values <= 0 are coerced to 1.
func newChatLimiter(rps float64, burst int) *chatLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &chatLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		buckets: make(map[int64]*bucket),
		ttl:     10 * time.Minute,
	}
}

// Allow reports whether chatID may issue a summary request now, consuming a
// token when it may.
func (l *chatLimiter) Allow(chatID int64) bool {
	return l.get(chatID).Allow()
}

// get returns (and refreshes) the limiter for chatID, creating it if absent.
// Cleanup runs before the touch so an idle bucket can be evicted even when it
// is the one being fetched.
func (l *chatLimiter) get(chatID int64) *rate.Limiter {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.lookups++
	if l.lookups >= 1000 {
		for id, b := range l.buckets {
			if now.Sub(b.lastSeen) >= l.ttl {
				delete(l.buckets, id)
			}
		}
		l.lookups = 0
	}

	b, ok := l.buckets[chatID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[chatID] = b
	}
	b.lastSeen = now
	return b.limiter
}
