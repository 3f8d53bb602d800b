package models

import "time"

// SpeakerLabel is the best-effort role of whoever spoke a fragment.
type SpeakerLabel string

const (
	SpeakerAgent   SpeakerLabel = "Agent"
	SpeakerCaller  SpeakerLabel = "Caller"
	SpeakerUnknown SpeakerLabel = "Unknown"
)

// SpeakerFromIndex maps a diarization speaker index to a label. The mapping
// assumes the agent starts speaking first on the call.
func SpeakerFromIndex(index int) SpeakerLabel {
	switch index {
	case 0:
		return SpeakerAgent
	case 1:
		return SpeakerCaller
	default:
		return SpeakerUnknown
	}
}

// TranscriptFragment is one recognized utterance span of a conversation.
type TranscriptFragment struct {
	ID             string       `json:"id" db:"id"`
	ConversationID string       `json:"conversation_id" db:"conversation_id"`
	TenantID       string       `json:"tenant_id" db:"tenant_id"`
	Content        string       `json:"content" db:"content"`
	IsFinal        bool         `json:"is_final" db:"is_final"`
	SpeakerLabel   SpeakerLabel `json:"speaker_label" db:"speaker_label"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
}
