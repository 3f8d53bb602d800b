package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentx/liveassist/internal/models"
)

// MemoryTranscriptRepository keeps fragments in process memory. It backs tests
// and local runs without a database.
type MemoryTranscriptRepository struct {
	mu        sync.RWMutex
	fragments []models.TranscriptFragment
}

// NewMemoryTranscriptRepository creates an empty in-memory transcript store
func NewMemoryTranscriptRepository() *MemoryTranscriptRepository {
	return &MemoryTranscriptRepository{}
}

// Append stores a fragment
func (r *MemoryTranscriptRepository) Append(ctx context.Context, fragment AppendFragment) (*models.TranscriptFragment, error) {
	stored := models.TranscriptFragment{
		ID:             uuid.New().String(),
		ConversationID: fragment.ConversationID,
		TenantID:       fragment.TenantID,
		Content:        fragment.Content,
		IsFinal:        fragment.IsFinal,
		SpeakerLabel:   fragment.SpeakerLabel,
		CreatedAt:      time.Now(),
	}

	r.mu.Lock()
	r.fragments = append(r.fragments, stored)
	r.mu.Unlock()

	return &stored, nil
}

// ListRecent returns the newest fragments of a conversation, oldest first
func (r *MemoryTranscriptRepository) ListRecent(ctx context.Context, conversationID, tenantID string, limit int) ([]models.TranscriptFragment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []models.TranscriptFragment
	for _, f := range r.fragments {
		if f.ConversationID == conversationID && f.TenantID == tenantID {
			matched = append(matched, f)
		}
	}

	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}

	result := make([]models.TranscriptFragment, len(matched))
	copy(result, matched)
	return result, nil
}

// All returns every stored fragment in append order.
func (r *MemoryTranscriptRepository) All() []models.TranscriptFragment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]models.TranscriptFragment, len(r.fragments))
	copy(result, r.fragments)
	return result
}
