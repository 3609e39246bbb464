// Package services – SummaryService
//
// This file implements SummaryService, the application-level component that
// owns the summarization pipeline: it retrieves the last-N message window,
// partitions it into chunks, drives the external text generator per chunk
// (map), consolidates the partial summaries (reduce), and appends the
// most-replied ranking with reconstructed deep links.
//
// The external generation calls are strictly sequential (chunk i+1 is only
// summarized after chunk i completes), which keeps load on the generation
// service bounded to one in-flight call per request and makes ordering easy
// to reason about. No retries are performed here; a failed call aborts the
// whole request and no partial digest is ever returned.
//
// Observability: the public method is OpenTelemetry-instrumented; Prometheus
// counters track requests by outcome and generation calls by stage.
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/ghonche/summary-bot/internal/domain"
	"github.com/ghonche/summary-bot/internal/repo"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// defaultChunkSize is the number of messages summarized per generation
	// call. Larger chunks mean fewer external calls but longer prompts.
	defaultChunkSize = 20

	// defaultTopReplies caps the most-replied ranking length.
	defaultTopReplies = 5

	// unknownUser is substituted for an absent username at formatting time.
	unknownUser = "anonymous"

	// chunkSeparator visibly delimits partial summaries inside the reduce
	// prompt.
	chunkSeparator = "\n\n---\n\n"

	addendumHeader = "\n\n**Most-replied messages:**\n"
)

var (
	summaryRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summary_requests_total",
			Help: "Total summarization requests by outcome.",
		},
		[]string{"outcome"},
	)

	generationCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_calls_total",
			Help: "Total external text-generation calls by pipeline stage.",
		},
		[]string{"stage"},
	)
)

func init() {
	prometheus.MustRegister(summaryRequests, generationCalls)
}

// Generator is the capability boundary to the external text-generation
// service. Implementations must return an error, never silently empty text,
// when the service fails, times out, or produces no usable content. Calls may
// block for a network-bound, non-deterministic duration.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// MessageStore defines the read surface of the message log required by
// SummaryService. Implementations are responsible for ordering guarantees:
// FetchRecent must return ascending chronological order.
type MessageStore interface {
	// FetchRecent returns at most n messages of chatID, oldest first.
	FetchRecent(ctx context.Context, db *gorm.DB, chatID int64, n int) ([]domain.Message, error)

	// TopRepliedTo returns up to k (message_id, reply_count) rows, most
	// replied first, deterministic tie-break.
	TopRepliedTo(ctx context.Context, db *gorm.DB, chatID int64, k int) ([]repo.ReplyCount, error)

	// LookupByMessageID resolves a transport message id within chatID, or
	// returns gorm.ErrRecordNotFound.
	LookupByMessageID(ctx context.Context, db *gorm.DB, chatID int64, messageID int) (*domain.Message, error)
}

// SummaryService coordinates window retrieval, map-reduce summarization, and
// reply ranking for one conversation.
type SummaryService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Store is the message log read surface.
	Store MessageStore
	// Gen is the external text generator.
	Gen Generator

	// ChunkSize overrides defaultChunkSize when > 0.
	ChunkSize int
	// TopReplies overrides defaultTopReplies when > 0.
	TopReplies int
}

// NewSummaryService constructs a SummaryService with default chunking policy.
func NewSummaryService(db *gorm.DB, store MessageStore, gen Generator) *SummaryService {
	return &SummaryService{
		DB:         db,
		Store:      store,
		Gen:        gen,
		ChunkSize:  defaultChunkSize,
		TopReplies: defaultTopReplies,
	}
}

// Summarize produces the humorous digest of the last n messages of chatID,
// followed by the most-replied addendum.
//
// Behavior:
//   - n must be positive (validated by the caller; ErrInvalidWindow backstop)
//   - an empty window returns ErrNoMessages without any generation call
//   - one chunk: its summary is the digest, no reduce call
//   - multiple chunks: len(chunks) map calls + 1 reduce call, sequential
//   - any generation error aborts the request; no partial digest is returned
//   - the addendum is omitted entirely when no reply data exists; ranking
//     entries whose message was never ingested are skipped silently
func (s *SummaryService) Summarize(ctx context.Context, chatID int64, n int) (string, error) {
	tr := otel.Tracer("services/SummaryService")
	ctx, span := tr.Start(ctx, "Summarize",
		trace.WithAttributes(
			attribute.Int64("chat.id", chatID),
			attribute.Int("window", n),
		),
	)
	defer span.End()

	if n <= 0 {
		summaryRequests.WithLabelValues("invalid").Inc()
		return "", ErrInvalidWindow
	}

	msgs, err := s.Store.FetchRecent(ctx, s.DB, chatID, n)
	if err != nil {
		summaryRequests.WithLabelValues("error").Inc()
		return "", fmt.Errorf("fetch window: %w", err)
	}
	if len(msgs) == 0 {
		summaryRequests.WithLabelValues("empty").Inc()
		return "", ErrNoMessages
	}

	chunks := splitChunks(msgs, s.chunkSize())
	span.SetAttributes(attribute.Int("chunks", len(chunks)))

	partials := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		generationCalls.WithLabelValues("map").Inc()
		sum, err := s.Gen.Generate(ctx, mapPrompt(chunk))
		if err != nil {
			summaryRequests.WithLabelValues("error").Inc()
			return "", fmt.Errorf("summarize chunk %d/%d: %w", i+1, len(chunks), err)
		}
		partials = append(partials, sum)
	}

	final := partials[0]
	if len(partials) > 1 {
		generationCalls.WithLabelValues("reduce").Inc()
		final, err = s.Gen.Generate(ctx, reducePrompt(partials))
		if err != nil {
			summaryRequests.WithLabelValues("error").Inc()
			return "", fmt.Errorf("combine summaries: %w", err)
		}
	}

	addendum, err := s.replyAddendum(ctx, chatID)
	if err != nil {
		summaryRequests.WithLabelValues("error").Inc()
		return "", fmt.Errorf("reply ranking: %w", err)
	}

	summaryRequests.WithLabelValues("ok").Inc()
	return final + addendum, nil
}

// replyAddendum builds the numbered most-replied section for chatID, or ""
// when no reply data exists. Entries whose original message cannot be found
// in the log are skipped without failing the request.
func (s *SummaryService) replyAddendum(ctx context.Context, chatID int64) (string, error) {
	rows, err := s.Store.TopRepliedTo(ctx, s.DB, chatID, s.topReplies())
	if err != nil {
		return "", err
	}

	var b strings.Builder
	rank := 0
	for _, rc := range rows {
		m, err := s.Store.LookupByMessageID(ctx, s.DB, chatID, rc.MessageID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return "", err
		}
		rank++
		if rank == 1 {
			b.WriteString(addendumHeader)
		}
		fmt.Fprintf(&b, "%d. Name: %s\nText: %s\nReplies: %d\nLink: %s\n\n",
			rank, displayName(m.Username), m.Text, rc.ReplyCount, deepLink(chatID, rc.MessageID))
	}
	return b.String(), nil
}

func (s *SummaryService) chunkSize() int {
	if s.ChunkSize > 0 {
		return s.ChunkSize
	}
	return defaultChunkSize
}

func (s *SummaryService) topReplies() int {
	if s.TopReplies > 0 {
		return s.TopReplies
	}
	return defaultTopReplies
}

// --- Prompt construction ---

const mapPromptTemplate = `These messages come from a Telegram group chat.
Your job is to write, for each user, a longer humorous recap of what they said, in a friendly roast style with a little mockery.
Make the recaps detailed enough that nothing gets lost, not too short.
No harsh or hurtful insults.

The output must look like this:
- username:
   😂 a detailed humorous take on what they said

Messages:
%s`

const reducePromptTemplate = `These are humorous summaries produced from different chunks of the same Telegram group chat.
Your job is to combine them all into one final detailed humorous digest per user, without repetition.
Keep the tone friendly and free of harsh insults, but do tease and throw a few jabs.
Expand the recaps so they stay tied to what each user actually wrote.

The output must look like this:
- username:
   😂 a detailed humorous overall take on what they said

Summaries:
%s`

// mapPrompt renders the per-chunk prompt with one "{displayName}: {text}"
// line per message.
func mapPrompt(chunk []domain.Message) string {
	return fmt.Sprintf(mapPromptTemplate, formatMessages(chunk))
}

// reducePrompt renders the consolidation prompt over all partial summaries,
// joined with a visible separator.
func reducePrompt(partials []string) string {
	return fmt.Sprintf(reducePromptTemplate, strings.Join(partials, chunkSeparator))
}

func formatMessages(msgs []domain.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, displayName(m.Username)+": "+m.Text)
	}
	return strings.Join(lines, "\n")
}

// displayName substitutes the unknown-user placeholder for empty usernames.
func displayName(username string) string {
	if username == "" {
		return unknownUser
	}
	return username
}

// deepLink reconstructs the t.me URL for a message in a supergroup/channel
// chat ("-100"-prefixed ids). Other chats cannot be deep-linked with this
// scheme, so a textual placeholder carrying the message id is used instead.
func deepLink(chatID int64, messageID int) string {
	id := strconv.FormatInt(chatID, 10)
	if strings.HasPrefix(id, "-100") {
		return fmt.Sprintf("https://t.me/c/%s/%d", id[4:], messageID)
	}
	return fmt.Sprintf("Message ID: %d", messageID)
}
