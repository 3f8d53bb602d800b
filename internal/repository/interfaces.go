package repository

import (
	"context"
	"errors"

	"github.com/agentx/liveassist/internal/models"
)

// ErrPersistence wraps failures of the transcript store.
var ErrPersistence = errors.New("transcript persistence failure")

// AppendFragment is the input of TranscriptRepository.Append.
type AppendFragment struct {
	ConversationID string
	TenantID       string
	Content        string
	IsFinal        bool
	SpeakerLabel   models.SpeakerLabel
}

// TranscriptRepository is the append-only transcript sink.
type TranscriptRepository interface {
	// Append stores one fragment and returns it with ID and CreatedAt set.
	Append(ctx context.Context, fragment AppendFragment) (*models.TranscriptFragment, error)
	// ListRecent returns up to limit of the newest fragments of a conversation
	// within a tenant, ordered oldest first.
	ListRecent(ctx context.Context, conversationID, tenantID string, limit int) ([]models.TranscriptFragment, error)
}
