package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/agentx/liveassist/internal/models"
	"github.com/agentx/liveassist/internal/repository"
)

// TranscriptRepository implements repository.TranscriptRepository using PostgreSQL
type TranscriptRepository struct {
	db *sqlx.DB
}

// NewTranscriptRepository creates a new PostgreSQL transcript repository
func NewTranscriptRepository(db *sqlx.DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

// Append inserts a fragment
func (r *TranscriptRepository) Append(ctx context.Context, fragment repository.AppendFragment) (*models.TranscriptFragment, error) {
	stored := models.TranscriptFragment{
		ID:             uuid.New().String(),
		ConversationID: fragment.ConversationID,
		TenantID:       fragment.TenantID,
		Content:        fragment.Content,
		IsFinal:        fragment.IsFinal,
		SpeakerLabel:   fragment.SpeakerLabel,
		CreatedAt:      time.Now().UTC(),
	}

	query := `
		INSERT INTO transcript_fragments (id, conversation_id, tenant_id, content, is_final, speaker_label, created_at)
		VALUES (:id, :conversation_id, :tenant_id, :content, :is_final, :speaker_label, :created_at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, stored); err != nil {
		return nil, fmt.Errorf("%w: insert fragment: %v", repository.ErrPersistence, err)
	}

	return &stored, nil
}

// ListRecent retrieves the newest fragments of a conversation, oldest first
func (r *TranscriptRepository) ListRecent(ctx context.Context, conversationID, tenantID string, limit int) ([]models.TranscriptFragment, error) {
	if limit <= 0 {
		limit = 50
	}

	var fragments []models.TranscriptFragment
	query := `
		SELECT id, conversation_id, tenant_id, content, is_final, speaker_label, created_at
		FROM (
			SELECT id, conversation_id, tenant_id, content, is_final, speaker_label, created_at, seq
			FROM transcript_fragments
			WHERE conversation_id = $1 AND tenant_id = $2
			ORDER BY seq DESC
			LIMIT $3
		) recent
		ORDER BY seq ASC
	`

	if err := r.db.SelectContext(ctx, &fragments, query, conversationID, tenantID, limit); err != nil {
		return nil, fmt.Errorf("%w: list fragments: %v", repository.ErrPersistence, err)
	}

	return fragments, nil
}
