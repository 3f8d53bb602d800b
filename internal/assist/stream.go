package assist

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/agentx/liveassist/internal/models"
)

// Stream event names.
const (
	EventHello       = "hello"
	EventSuggestions = "suggestions"
	EventPing        = "ping"
	EventError       = "error"
)

// Error codes carried by error events.
const (
	CodeTranscriptUnavailable = "transcript_unavailable"
	CodeGenerationFailed      = "suggestion_generation_failed"
	CodeInternal              = "internal_error"
)

// FragmentSource reads the recent transcript of a conversation.
type FragmentSource interface {
	ListRecent(ctx context.Context, conversationID, tenantID string, limit int) ([]models.TranscriptFragment, error)
}

// Suggester turns transcript text into suggestion items.
type Suggester interface {
	Suggest(ctx context.Context, transcript string, maxCount int) ([]models.SuggestionItem, error)
}

// EventWriter delivers one named event to the subscribed client.
type EventWriter interface {
	WriteEvent(event string, data interface{}) error
}

// StreamConfig controls the cadence and bounds of a subscription.
type StreamConfig struct {
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	MaxItems          int
	RecentFragments   int
	RequestTimeout    time.Duration
}

// HelloPayload acknowledges a new subscription.
type HelloPayload struct {
	ConversationID      string `json:"conversation_id"`
	PollIntervalMS      int64  `json:"poll_interval_ms"`
	HeartbeatIntervalMS int64  `json:"heartbeat_interval_ms"`
}

// SuggestionsPayload carries one suggestion batch. Suggestions holds the plain
// texts for simple clients, Items the full records.
type SuggestionsPayload struct {
	ConversationID string                  `json:"conversation_id"`
	Suggestions    []string                `json:"suggestions"`
	Items          []models.SuggestionItem `json:"items"`
	GeneratedAt    time.Time               `json:"generated_at"`
	Digest         string                  `json:"digest"`
}

// PingPayload is the heartbeat body.
type PingPayload struct {
	Timestamp int64 `json:"ts"`
}

// ErrorPayload reports a failed poll. The subscription stays open.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Subscription drives suggestion generation for one client of one
// conversation. A write is applied only while the generation captured when it
// was scheduled is still current; Close bumps the generation.
type Subscription struct {
	conversationID string
	tenantID       string

	source    FragmentSource
	suggester Suggester
	writer    EventWriter
	cfg       StreamConfig
	logger    *logrus.Logger

	mu         sync.Mutex
	generation uint64
	closed     bool
	lastDigest string

	polling atomic.Bool
	polls   sync.WaitGroup
	done    chan struct{}
	failed  chan error
}

// NewSubscription creates a subscription. Run starts it.
func NewSubscription(conversationID, tenantID string, source FragmentSource, suggester Suggester, writer EventWriter, cfg StreamConfig, logger *logrus.Logger) *Subscription {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 20 * time.Second
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 3
	}
	if cfg.RecentFragments <= 0 {
		cfg.RecentFragments = 50
	}
	return &Subscription{
		conversationID: conversationID,
		tenantID:       tenantID,
		source:         source,
		suggester:      suggester,
		writer:         writer,
		cfg:            cfg,
		logger:         logger,
		// The initial empty batch stands for the empty transcript.
		lastDigest: Digest(""),
		done:       make(chan struct{}),
		failed:     make(chan error, 1),
	}
}

// Run emits hello and an initial empty batch, then polls and sends heartbeats
// until ctx is done, Close is called, or a write fails. Both tickers are
// released on every return path.
func (s *Subscription) Run(ctx context.Context) error {
	defer s.Close()

	gen := s.currentGeneration()

	if err := s.emit(gen, EventHello, HelloPayload{
		ConversationID:      s.conversationID,
		PollIntervalMS:      s.cfg.PollInterval.Milliseconds(),
		HeartbeatIntervalMS: s.cfg.HeartbeatInterval.Milliseconds(),
	}); err != nil {
		return err
	}

	initial := models.SuggestionBatch{
		ConversationID: s.conversationID,
		Items:          []models.SuggestionItem{},
		GeneratedAt:    time.Now().UTC(),
		SourceDigest:   Digest(""),
	}
	if err := s.emit(gen, EventSuggestions, newSuggestionsPayload(initial)); err != nil {
		return err
	}

	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case err := <-s.failed:
			return err
		case <-heartbeat.C:
			if err := s.emit(gen, EventPing, PingPayload{Timestamp: time.Now().Unix()}); err != nil {
				return err
			}
		case <-poll.C:
			// A slow poll suppresses the following ticks instead of piling up.
			if !s.polling.CompareAndSwap(false, true) {
				continue
			}
			s.polls.Add(1)
			go s.poll(ctx, gen)
		}
	}
}

// Close releases the subscription. Results of polls still in flight are
// discarded. Safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.generation++
	close(s.done)
}

// Wait blocks until polls started by Run have finished.
func (s *Subscription) Wait() {
	s.polls.Wait()
}

// Closed reports whether Close has been called.
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Subscription) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Subscription) poll(ctx context.Context, gen uint64) {
	defer s.polls.Done()
	defer s.polling.Store(false)

	log := s.logger.WithField("conversation_id", s.conversationID)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("suggestion poll failed")
			s.emitFromPoll(gen, EventError, ErrorPayload{Code: CodeInternal, Message: "suggestions unavailable"})
		}
	}()

	// An in-flight poll may finish after the client is gone; it is bounded by
	// the request timeout and its result is dropped by emit.
	var (
		pollCtx context.Context
		cancel  context.CancelFunc
	)
	if s.cfg.RequestTimeout > 0 {
		pollCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RequestTimeout)
	} else {
		pollCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))
	}
	defer cancel()

	fragments, err := s.source.ListRecent(pollCtx, s.conversationID, s.tenantID, s.cfg.RecentFragments)
	if err != nil {
		log.WithError(err).Warn("failed to read transcript for suggestions")
		s.emitFromPoll(gen, EventError, ErrorPayload{Code: CodeTranscriptUnavailable, Message: "transcript unavailable"})
		return
	}

	text := JoinFragments(fragments)
	digest := Digest(text)
	if !s.claimDigest(gen, digest) {
		return
	}

	items, err := s.suggester.Suggest(pollCtx, text, s.cfg.MaxItems)
	if err != nil {
		log.WithError(err).Warn("suggestion generation failed")
		// Clear suggestions derived from the previous transcript before reporting.
		s.emitFromPoll(gen, EventSuggestions, newSuggestionsPayload(models.SuggestionBatch{
			ConversationID: s.conversationID,
			Items:          []models.SuggestionItem{},
			GeneratedAt:    time.Now().UTC(),
			SourceDigest:   digest,
		}))
		s.emitFromPoll(gen, EventError, ErrorPayload{Code: CodeGenerationFailed, Message: "suggestions unavailable"})
		return
	}
	batch := models.SuggestionBatch{
		ConversationID: s.conversationID,
		Items:          items,
		GeneratedAt:    time.Now().UTC(),
		SourceDigest:   digest,
	}
	s.emitFromPoll(gen, EventSuggestions, newSuggestionsPayload(batch))
}

// claimDigest records digest as handled and reports whether it differs from
// the previous one. A failed generation keeps its digest, so the LLM is asked
// at most once per transcript state.
func (s *Subscription) claimDigest(gen uint64, digest string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.generation || digest == s.lastDigest {
		return false
	}
	s.lastDigest = digest
	return true
}

var errStale = errors.New("stale subscription generation")

// emit writes an event if gen is still current. Writes are serialized.
func (s *Subscription) emit(gen uint64, event string, data interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.generation {
		return errStale
	}
	if err := s.writer.WriteEvent(event, data); err != nil {
		return fmt.Errorf("write %s event: %w", event, err)
	}
	return nil
}

func (s *Subscription) emitFromPoll(gen uint64, event string, data interface{}) {
	err := s.emit(gen, event, data)
	if err == nil || errors.Is(err, errStale) {
		return
	}
	select {
	case s.failed <- err:
	default:
	}
}

func newSuggestionsPayload(batch models.SuggestionBatch) SuggestionsPayload {
	items := batch.Items
	if items == nil {
		items = []models.SuggestionItem{}
	}
	return SuggestionsPayload{
		ConversationID: batch.ConversationID,
		Suggestions:    batch.Texts(),
		Items:          items,
		GeneratedAt:    batch.GeneratedAt,
		Digest:         batch.SourceDigest,
	}
}

// JoinFragments renders fragments as "Speaker: content" lines.
func JoinFragments(fragments []models.TranscriptFragment) string {
	var b strings.Builder
	for _, f := range fragments {
		content := strings.TrimSpace(f.Content)
		if content == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		label := f.SpeakerLabel
		if label == "" {
			label = models.SpeakerUnknown
		}
		b.WriteString(string(label))
		b.WriteString(": ")
		b.WriteString(content)
	}
	return b.String()
}

// Digest fingerprints transcript text.
func Digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// SSEWriter writes server-sent events to a buffered stream and flushes after
// every event.
type SSEWriter struct {
	w *bufio.Writer
}

// NewSSEWriter wraps w.
func NewSSEWriter(w *bufio.Writer) *SSEWriter {
	return &SSEWriter{w: w}
}

func (w *SSEWriter) WriteEvent(event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	return w.w.Flush()
}
