package assist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/agentx/liveassist/internal/llm"
	"github.com/agentx/liveassist/internal/models"
)

// ErrSuggestionGeneration is returned when the LLM call fails or its answer
// cannot be turned into suggestions.
var ErrSuggestionGeneration = errors.New("suggestion generation failed")

const (
	defaultPriority = 0.5
	minPriority     = 0.0
	maxPriority     = 1.0
)

const systemPrompt = `You assist a customer service agent during a live phone call.
Based on the most recent part of the call transcript, propose short follow-up questions
or next best actions the agent can use right now.
Answer in the language of the transcript.
Respond with JSON only: an array of objects {"text": string, "category": "question"|"action"|"info", "priority": number between 0 and 1}.
Personal data has been replaced with placeholders such as [PHONE]; never try to reconstruct it.`

// EngineConfig bounds the engine's input and output.
type EngineConfig struct {
	WindowChars  int
	MaxItemChars int
}

// Engine derives suggestion items from transcript text.
type Engine struct {
	completer llm.Completer
	masker    *Masker
	cfg       EngineConfig
	logger    *logrus.Logger
}

// NewEngine creates an assist engine
func NewEngine(completer llm.Completer, masker *Masker, cfg EngineConfig, logger *logrus.Logger) *Engine {
	if cfg.WindowChars <= 0 {
		cfg.WindowChars = 4000
	}
	if cfg.MaxItemChars <= 0 {
		cfg.MaxItemChars = 160
	}
	if masker == nil {
		masker = NewMasker()
	}
	return &Engine{
		completer: completer,
		masker:    masker,
		cfg:       cfg,
		logger:    logger,
	}
}

// Suggest generates at most maxCount suggestions for the transcript. It always
// returns a non-nil slice; on failure the slice is empty and the error wraps
// ErrSuggestionGeneration.
func (e *Engine) Suggest(ctx context.Context, transcript string, maxCount int) ([]models.SuggestionItem, error) {
	items := []models.SuggestionItem{}
	if maxCount <= 0 || strings.TrimSpace(transcript) == "" {
		return items, nil
	}

	masked := TailRunes(e.masker.Mask(transcript), e.cfg.WindowChars)
	userPrompt := fmt.Sprintf("Give at most %d suggestions.\n\nTranscript:\n%s", maxCount, masked)

	answer, err := e.completer.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return items, fmt.Errorf("%w: %v", ErrSuggestionGeneration, err)
	}

	raw, ok := extractItems(answer)
	if !ok {
		e.logger.WithField("answer_length", len(answer)).Warn("could not parse LLM suggestions")
		return items, fmt.Errorf("%w: unparseable response", ErrSuggestionGeneration)
	}

	seen := make(map[string]bool)
	for _, r := range raw {
		item, ok := e.normalize(r)
		if !ok {
			continue
		}
		key := strings.ToLower(item.Text)
		if seen[key] {
			continue
		}
		seen[key] = true

		items = append(items, item)
		if len(items) == maxCount {
			break
		}
	}

	return items, nil
}

// rawItem accepts both plain strings and objects with a few common field names.
type rawItem struct {
	Text       string   `json:"text"`
	Question   string   `json:"question"`
	Suggestion string   `json:"suggestion"`
	Category   string   `json:"category"`
	Priority   *float64 `json:"priority"`
	Weight     *float64 `json:"weight"`
}

func (r *rawItem) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.Text = s
		return nil
	}

	type plain rawItem
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = rawItem(p)
	return nil
}

func (e *Engine) normalize(r rawItem) (models.SuggestionItem, bool) {
	text := r.Text
	if text == "" {
		text = r.Question
	}
	if text == "" {
		text = r.Suggestion
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return models.SuggestionItem{}, false
	}
	text = truncateRunes(text, e.cfg.MaxItemChars)

	category := strings.ToLower(strings.TrimSpace(r.Category))
	if category == "" {
		category = models.DefaultSuggestionCategory
	}

	priority := defaultPriority
	if r.Priority != nil {
		priority = *r.Priority
	} else if r.Weight != nil {
		priority = *r.Weight
	}

	return models.SuggestionItem{
		ID:       uuid.New().String(),
		Text:     text,
		Category: category,
		Priority: clamp(priority, minPriority, maxPriority),
	}, true
}

// extractItems parses the LLM answer. It accepts a bare array, an object with
// an items or suggestions field, and either of those embedded in prose or a
// fenced code block.
func extractItems(answer string) ([]rawItem, bool) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, false
	}

	if items, ok := parseItems(answer); ok {
		return items, true
	}

	if start, end := strings.Index(answer, "["), strings.LastIndex(answer, "]"); start >= 0 && end > start {
		if items, ok := parseItems(answer[start : end+1]); ok {
			return items, true
		}
	}

	if start, end := strings.Index(answer, "{"), strings.LastIndex(answer, "}"); start >= 0 && end > start {
		if items, ok := parseItems(answer[start : end+1]); ok {
			return items, true
		}
	}

	return nil, false
}

func parseItems(data string) ([]rawItem, bool) {
	var list []rawItem
	if err := json.Unmarshal([]byte(data), &list); err == nil {
		return list, true
	}

	var wrapped struct {
		Items       []rawItem `json:"items"`
		Suggestions []rawItem `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(data), &wrapped); err != nil {
		return nil, false
	}
	switch {
	case wrapped.Items != nil:
		return wrapped.Items, true
	case wrapped.Suggestions != nil:
		return wrapped.Suggestions, true
	default:
		return nil, false
	}
}

// TailRunes keeps the last n runes of s, starting at a word boundary when one
// is close by.
func TailRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}

	runes := []rune(s)
	cut := len(runes) - n
	tail := string(runes[cut:])
	if unicode.IsSpace(runes[cut-1]) {
		return tail
	}
	// Drop the partial leading word.
	if i := strings.IndexFunc(tail, unicode.IsSpace); i >= 0 && i < 32 {
		tail = strings.TrimLeftFunc(tail[i:], unicode.IsSpace)
	}
	return tail
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
