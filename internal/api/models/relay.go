package models

import (
	"time"

	"github.com/agentx/liveassist/internal/llm"
	"github.com/agentx/liveassist/internal/models"
	"github.com/agentx/liveassist/internal/services"
)

// RelayTokenRequest is the body of POST /relay/token. The conversation binding
// is optional.
type RelayTokenRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
}

// RelayTokenResponse carries a freshly minted relay token.
type RelayTokenResponse struct {
	Token            string    `json:"token"`
	ExpiresInSeconds int       `json:"expires_in_seconds"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// TranscriptResponse lists the recent fragments of a conversation, oldest
// first.
type TranscriptResponse struct {
	ConversationID string                      `json:"conversation_id"`
	Fragments      []models.TranscriptFragment `json:"fragments"`
}

// HealthResponse reports service and dependency health.
type HealthResponse struct {
	Status       string                           `json:"status"`
	Service      string                           `json:"service"`
	Dependencies map[string]services.HealthStatus `json:"dependencies,omitempty"`
	Completions  *llm.CompletionStats             `json:"completions,omitempty"`
}
