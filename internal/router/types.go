package router

import "github.com/nexagent/nexagent/pkg/models"

// MessageRequest is the body of POST /api/message.
type MessageRequest struct {
	Content        string                `json:"content"`
	ConversationID string                `json:"conversation_id,omitempty"`
	SystemPrompt   string                `json:"system_prompt,omitempty"`
	Parameters     map[string]any        `json:"parameters,omitempty"`
	ProcessingMode models.ProcessingMode `json:"processing_mode,omitempty"`
}

// MessageResponse is the body POST /api/message returns.
type MessageResponse struct {
	ID             string           `json:"id"`
	Content        string           `json:"content"`
	ConversationID string           `json:"conversation_id"`
	Timestamp      int64            `json:"timestamp"`
	Timeline       *models.Timeline `json:"timeline"`
}

// ConversationView is one entry of GET /api/conversations and the body of
// GET /api/conversations/{id}.
type ConversationView struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Messages  []models.Message `json:"messages"`
	CreatedAt string           `json:"created_at"`
	UpdatedAt string           `json:"updated_at"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status        string `json:"status"`
	Server        string `json:"server"`
	Version       string `json:"version"`
	TimestampMs   int64  `json:"timestamp_ms"`
	Connections   int    `json:"connections"`
	Conversations int    `json:"conversations"`
	Client        string `json:"client"`
}

// RateLimitedResponse is the 429 body /api/health returns once exhausted.
type RateLimitedResponse struct {
	Status     string  `json:"status"`
	RetryAfter float64 `json:"retry_after"`
}

// TimelineResponse is the body of GET /api/conversations/{id}/timeline.
type TimelineResponse struct {
	Events     []*models.TimelineEvent `json:"events"`
	EventCount int                     `json:"event_count"`
}

// ErrorResponse is the generic JSON error envelope for 4xx/5xx responses.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
