package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ghonche/summary-bot/internal/repo"
	"github.com/ghonche/summary-bot/internal/services"
)

const (
	greeting        = "Hey everyone 😈 I'm the group's resident summarizer. Send /summary and I'll recap the recent chatter, with a bit of friendly roasting."
	workingNotice   = "😈 Reading the backlog, sharpening the jokes..."
	emptyNotice     = "Nothing to summarize yet. Say something funny first 🤷"
	badWindowNotice = "That's not a number I can work with. Try /summary or /summary 200."
	failureNotice   = "Something went wrong putting the digest together. Try again in a bit."
	throttledNotice = "Easy there. I just need a moment between digests."
)

// Summarizer is the slice of the service layer the command handlers need.
type Summarizer interface {
	Summarize(ctx context.Context, chatID int64, n int) (string, error)
}

// Options tunes command behavior. Zero values fall back to sane defaults.
type Options struct {
	// DefaultWindow is the window used by a bare /summary.
	DefaultWindow int
	// MaxWindow caps user-requested windows; larger requests are clamped.
	MaxWindow int
	// SummaryTimeout bounds one full pipeline run.
	SummaryTimeout time.Duration
	// RatePerSec and RateBurst configure the per-chat /summary limiter.
	RatePerSec float64
	RateBurst  int
}

func (o *Options) defaults() {
	if o.DefaultWindow <= 0 {
		o.DefaultWindow = 100
	}
	if o.MaxWindow <= 0 {
		o.MaxWindow = 500
	}
	if o.SummaryTimeout <= 0 {
		o.SummaryTimeout = 5 * time.Minute
	}
	if o.RatePerSec <= 0 {
		o.RatePerSec = 1.0 / 30.0
	}
	if o.RateBurst <= 0 {
		o.RateBurst = 2
	}
}

// Bot runs the Telegram long-poll loop, ingests group messages into the log,
// and serves the /start, /summary and /stats commands.
type Bot struct {
	api     *tgbotapi.BotAPI
	db      *gorm.DB
	svc     Summarizer
	log     zerolog.Logger
	limiter *chatLimiter
	opts    Options
}

// New connects to the Telegram Bot API and returns a ready Bot.
func New(token string, db *gorm.DB, svc Summarizer, log zerolog.Logger, opts Options) (*Bot, error) {
	opts.defaults()
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	return &Bot{
		api:     api,
		db:      db,
		svc:     svc,
		log:     log,
		limiter: newChatLimiter(opts.RatePerSec, opts.RateBurst),
		opts:    opts,
	}, nil
}

// Username returns the bot account's username as reported by Telegram.
func (b *Bot) Username() string { return b.api.Self.UserName }

// Run polls for updates until ctx is cancelled. Transport failures trigger a
// reconnect with exponential backoff rather than killing the process.
func (b *Bot) Run(ctx context.Context) error {
	b.log.Info().Str("bot", b.api.Self.UserName).Msg("telegram bot started")

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return nil
		}

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := b.api.GetUpdatesChan(u)

		pollErr := b.poll(ctx, updates)

		// Stop the old polling goroutine before opening a new channel.
		b.api.StopReceivingUpdates()

		if pollErr == nil {
			return nil
		}

		b.log.Warn().Err(pollErr).Dur("backoff", backoff).Msg("telegram poll disconnected, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// poll reads from the update channel until ctx is done, the channel closes,
// or nothing arrives within the stall window. The library's 60s long poll
// blocks instead of closing the channel when the connection dies, so a timer
// that outlives two poll cycles is used as stall detection. Returns nil only
// on context cancellation.
func (b *Bot) poll(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	const stallTimeout = 150 * time.Second

	timer := time.NewTimer(stallTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return errors.New("update channel closed")
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(stallTimeout)

			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			}
		case <-timer.C:
			return fmt.Errorf("no updates received for %v (possible disconnect)", stallTimeout)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.reply(msg.Chat.ID, greeting)
		case "summary":
			b.handleSummary(ctx, msg)
		case "stats":
			b.handleStats(ctx, msg)
		}
		return
	}
	b.ingest(msg)
}

// ingest appends one plain text message to the log. Commands and non-text
// content (stickers, media without captions, service messages) are not stored.
func (b *Bot) ingest(msg *tgbotapi.Message) {
	if msg.Text == "" || msg.From == nil {
		return
	}

	username := msg.From.UserName
	if username == "" {
		username = msg.From.FirstName
	}

	var replyTo *int
	if msg.ReplyToMessage != nil {
		id := msg.ReplyToMessage.MessageID
		replyTo = &id
	}

	if _, err := repo.SaveMessage(b.db, msg.Chat.ID, username, msg.Text, msg.MessageID, replyTo); err != nil {
		b.log.Error().Err(err).
			Int64("chat_id", msg.Chat.ID).
			Int("message_id", msg.MessageID).
			Msg("failed to store message")
	}
}

func (b *Bot) handleSummary(ctx context.Context, msg *tgbotapi.Message) {
	n, err := parseWindow(msg.CommandArguments(), b.opts.DefaultWindow, b.opts.MaxWindow)
	if err != nil {
		b.reply(msg.Chat.ID, badWindowNotice)
		return
	}

	if !b.limiter.Allow(msg.Chat.ID) {
		b.reply(msg.Chat.ID, throttledNotice)
		return
	}

	b.reply(msg.Chat.ID, workingNotice)

	ctx, cancel := context.WithTimeout(ctx, b.opts.SummaryTimeout)
	defer cancel()

	start := time.Now()
	digest, err := b.svc.Summarize(ctx, msg.Chat.ID, n)
	if err != nil {
		if errors.Is(err, services.ErrNoMessages) {
			b.reply(msg.Chat.ID, emptyNotice)
			return
		}
		b.log.Error().Err(err).
			Int64("chat_id", msg.Chat.ID).
			Int("window", n).
			Dur("elapsed", time.Since(start)).
			Msg("summarization failed")
		b.reply(msg.Chat.ID, failureNotice)
		return
	}

	b.log.Info().
		Int64("chat_id", msg.Chat.ID).
		Int("window", n).
		Dur("elapsed", time.Since(start)).
		Msg("digest delivered")
	b.replyMarkdown(msg.Chat.ID, digest)
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) {
	count, lastAt, err := repo.MessageStats(ctx, b.db, msg.Chat.ID)
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("stats query failed")
		b.reply(msg.Chat.ID, failureNotice)
		return
	}
	text := fmt.Sprintf("I've got %d messages on record for this chat.", count)
	if lastAt != nil {
		text += fmt.Sprintf(" Latest from %s.", lastAt.Format("2006-01-02 15:04 MST"))
	}
	b.reply(msg.Chat.ID, text)
}

// parseWindow resolves the /summary argument. An empty argument selects def;
// anything non-numeric or non-positive is rejected; values above max are
// clamped to max rather than refused.
func parseWindow(arg string, def, max int) (int, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return def, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("window %q is not a number", arg)
	}
	if n <= 0 {
		return 0, fmt.Errorf("window must be positive, got %d", n)
	}
	if n > max {
		n = max
	}
	return n, nil
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send reply")
	}
}

// replyMarkdown sends text with Markdown formatting, retrying as plain text
// when Telegram rejects the entity parse. Model output is not guaranteed to
// be balanced Markdown.
func (b *Bot) replyMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("markdown send failed, retrying as plain text")
		b.reply(chatID, text)
	}
}
