package models

import "time"

const DefaultSuggestionCategory = "question"

// SuggestionItem is a single follow-up question or next-best-action.
type SuggestionItem struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	Category string  `json:"category,omitempty"`
	Priority float64 `json:"priority"`
}

// SuggestionBatch is one generation of suggestions for a conversation.
// SourceDigest fingerprints the transcript text the batch was derived from.
type SuggestionBatch struct {
	ConversationID string           `json:"conversation_id"`
	Items          []SuggestionItem `json:"items"`
	GeneratedAt    time.Time        `json:"generated_at"`
	SourceDigest   string           `json:"source_digest"`
}

// Texts returns the item texts in order.
func (b SuggestionBatch) Texts() []string {
	texts := make([]string, 0, len(b.Items))
	for _, item := range b.Items {
		texts = append(texts, item.Text)
	}
	return texts
}
