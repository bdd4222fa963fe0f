// Package timeline implements the append-only, hierarchical event log.
// A Timeline is owned by the agent loop (or direct responder) serving its
// conversation; the Store is the in-process table of those timelines
// keyed by conversation id.
package timeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexagent/nexagent/pkg/models"
)

// terminalOnCreate lists event types that are created already closed
// because no later state transition is expected.
var terminalOnCreate = map[models.EventType]bool{
	models.EventUserInput:     true,
	models.EventAgentResponse: true,
	models.EventAgentStart:    true,
	models.EventAgentStop:     true,
	models.EventPlanCreated:   true,
	models.EventPlanUpdated:   true,
	models.EventSystem:        true,
}

// nowFunc is overridable in tests.
var nowFunc = time.Now

// Store owns one Timeline per conversation.
type Store struct {
	mu        sync.RWMutex
	timelines map[string]*conversationTimeline
}

type conversationTimeline struct {
	mu       sync.Mutex
	timeline *models.Timeline
	events   map[string]*models.TimelineEvent
}

// NewStore creates an empty timeline store.
func NewStore() *Store {
	return &Store{timelines: make(map[string]*conversationTimeline)}
}

// NewTimeline creates (or returns the existing) Timeline for a conversation.
func (s *Store) NewTimeline(conversationID string) *models.Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ct, ok := s.timelines[conversationID]; ok {
		return ct.timeline
	}
	now := nowFunc()
	ct := &conversationTimeline{
		timeline: &models.Timeline{
			TimelineID:     uuid.NewString(),
			ConversationID: conversationID,
			CreatedAt:      now,
			UpdatedAt:      now,
			RootEvents:     nil,
		},
		events: make(map[string]*models.TimelineEvent),
	}
	s.timelines[conversationID] = ct
	return ct.timeline
}

// Get returns the Timeline for a conversation, if one exists.
func (s *Store) Get(conversationID string) (*models.Timeline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ct, ok := s.timelines[conversationID]
	if !ok {
		return nil, false
	}
	return ct.timeline, true
}

func (s *Store) get(conversationID string) *conversationTimeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	ct, ok := s.timelines[conversationID]
	if ok {
		return ct
	}
	now := nowFunc()
	ct = &conversationTimeline{
		timeline: &models.Timeline{
			TimelineID:     uuid.NewString(),
			ConversationID: conversationID,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		events: make(map[string]*models.TimelineEvent),
	}
	s.timelines[conversationID] = ct
	return ct
}

func truncateDescription(desc string) (short string, overflow bool) {
	if len(desc) <= models.DescriptionMaxChars {
		return desc, false
	}
	return desc[:models.DescriptionMaxChars], true
}

// AddEvent appends a new event to the conversation's timeline and returns
// its id. If parentID is non-empty it must reference an earlier event in
// the same timeline; events form a forest by construction (creation order
// enforces DAG + tree shape).
func (s *Store) AddEvent(conversationID string, typ models.EventType, title, description, parentID string, metadata map[string]any) string {
	ct := s.get(conversationID)

	ct.mu.Lock()
	defer ct.mu.Unlock()

	shortDesc, overflow := truncateDescription(description)
	if overflow {
		if metadata == nil {
			metadata = make(map[string]any, 1)
		}
		metadata["full_description"] = description
	}

	status := models.StatusStarted
	switch {
	case typ == models.EventAgentError || typ == models.EventError || typ == models.EventTaskFailed:
		status = models.StatusError
	case terminalOnCreate[typ]:
		status = models.StatusSuccess
	}

	evt := &models.TimelineEvent{
		EventID:     uuid.NewString(),
		Type:        typ,
		Title:       title,
		Description: shortDesc,
		Timestamp:   nowFunc(),
		ParentID:    parentID,
		Metadata:    metadata,
		Status:      status,
	}
	if status != models.StatusStarted {
		evt.MarkClosed()
	}

	ct.events[evt.EventID] = evt
	if parentID != "" {
		if parent, ok := ct.events[parentID]; ok {
			parent.Children = append(parent.Children, evt.EventID)
		}
	} else {
		ct.timeline.RootEvents = append(ct.timeline.RootEvents, evt)
	}
	ct.timeline.UpdatedAt = evt.Timestamp

	return evt.EventID
}

// CloseEvent marks an event success or error, recording duration_s.
// Idempotent: a second call on an already-closed event is a no-op
// and does not alter duration or status.
func (s *Store) CloseEvent(conversationID, eventID string, status models.EventStatus, resultMetadata map[string]any) {
	if status != models.StatusSuccess && status != models.StatusError {
		return
	}
	s.mu.RLock()
	ct, ok := s.timelines[conversationID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	evt, ok := ct.events[eventID]
	if !ok || evt.Closed() {
		return
	}

	now := nowFunc()
	dur := now.Sub(evt.Timestamp).Seconds()
	if dur < 0 {
		dur = 0
	}
	evt.DurationS = &dur
	evt.Status = status
	evt.MarkClosed()
	if resultMetadata != nil {
		if evt.Metadata == nil {
			evt.Metadata = make(map[string]any, len(resultMetadata))
		}
		for k, v := range resultMetadata {
			evt.Metadata[k] = v
		}
	}
	ct.timeline.UpdatedAt = now
}

// Event returns one event by id, if present.
func (s *Store) Event(conversationID, eventID string) (*models.TimelineEvent, bool) {
	s.mu.RLock()
	ct, ok := s.timelines[conversationID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	ct.mu.Lock()
	defer ct.mu.Unlock()
	evt, ok := ct.events[eventID]
	return evt, ok
}

// Filter selects events for GetEvents.
type Filter struct {
	Type *models.EventType
	Tag  string
	From time.Time
	To   time.Time
}

func (f Filter) matches(e *models.TimelineEvent) bool {
	if f.Type != nil && e.Type != *f.Type {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, t := range e.Tags {
			if t == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}

// GetEvents returns events (with their subtrees) matching the filter.
func (s *Store) GetEvents(conversationID string, f Filter) []*models.TimelineEvent {
	s.mu.RLock()
	ct, ok := s.timelines[conversationID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	var out []*models.TimelineEvent
	var walk func(e *models.TimelineEvent) bool
	walk = func(e *models.TimelineEvent) bool {
		keep := f.matches(e)
		for _, childID := range e.Children {
			child, ok := ct.events[childID]
			if !ok {
				continue
			}
			if walk(child) {
				keep = true
			}
		}
		return keep
	}
	for _, root := range ct.timeline.RootEvents {
		if walk(root) {
			out = append(out, root)
		}
	}
	return out
}
