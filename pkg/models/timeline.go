package models

import "time"

// EventType is the closed set of timeline event kinds.
type EventType string

const (
	EventAgentStart     EventType = "agent_start"
	EventAgentStop      EventType = "agent_stop"
	EventAgentError     EventType = "agent_error"
	EventAgentThinking  EventType = "agent_thinking"
	EventAgentResponse  EventType = "agent_response"
	EventUserInput      EventType = "user_input"
	EventToolCall       EventType = "tool_call"
	EventToolResult     EventType = "tool_result"
	EventPlanCreated    EventType = "plan_created"
	EventPlanUpdated    EventType = "plan_updated"
	EventTaskStarted    EventType = "task_started"
	EventTaskCompleted  EventType = "task_completed"
	EventTaskFailed     EventType = "task_failed"
	EventCodeExecution  EventType = "code_execution"
	EventWebBrowse      EventType = "web_browse"
	EventFileOperation  EventType = "file_operation"
	EventSystem         EventType = "system"
	EventError          EventType = "error"
)

// EventStatus is the lifecycle status of a TimelineEvent.
type EventStatus string

const (
	StatusStarted EventStatus = "started"
	StatusSuccess EventStatus = "success"
	StatusError   EventStatus = "error"
	StatusUnset   EventStatus = "unset"
)

// DescriptionMaxChars bounds the summary description stored directly on an
// event; anything longer belongs in Metadata so wire payloads stay small.
const DescriptionMaxChars = 100

// TimelineEvent is one entry in a Timeline; it may contain child events,
// forming a forest ordered by creation.
type TimelineEvent struct {
	EventID     string          `json:"event_id"`
	Type        EventType       `json:"type"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Timestamp   time.Time       `json:"timestamp"`
	ParentID    string          `json:"parent_id,omitempty"`
	Children    []string        `json:"children,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	Status      EventStatus     `json:"status"`
	DurationS   *float64        `json:"duration_s,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	closed      bool
}

// Closed reports whether the event has already been closed; closing is
// idempotent, so a second close is a no-op.
func (e *TimelineEvent) Closed() bool { return e.closed }

// MarkClosed records that the event has reached its terminal status. The
// timeline store calls this exactly once per event.
func (e *TimelineEvent) MarkClosed() { e.closed = true }

// Timeline is the ordered, append-only event log attached to one
// conversation.
type Timeline struct {
	TimelineID     string           `json:"timeline_id"`
	ConversationID string           `json:"conversation_id"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	RootEvents     []*TimelineEvent `json:"root_events"`
}
