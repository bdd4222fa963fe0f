package timeline

import (
	"testing"
	"time"

	"github.com/nexagent/nexagent/pkg/models"
)

func withFixedClock(t *testing.T, start time.Time) func() {
	t.Helper()
	cur := start
	nowFunc = func() time.Time {
		c := cur
		cur = cur.Add(time.Second)
		return c
	}
	return func() { nowFunc = time.Now }
}

func TestAddEventAndClose(t *testing.T) {
	defer withFixedClock(t, time.Unix(0, 0))()

	s := NewStore()
	s.NewTimeline("c1")

	parent := s.AddEvent("c1", models.EventAgentThinking, "thinking", "desc", "", nil)
	child := s.AddEvent("c1", models.EventToolCall, "tool", "desc", parent, nil)

	tl, ok := s.Get("c1")
	if !ok {
		t.Fatalf("expected timeline")
	}
	if len(tl.RootEvents) != 1 {
		t.Fatalf("expected 1 root event, got %d", len(tl.RootEvents))
	}
	if len(tl.RootEvents[0].Children) != 1 || tl.RootEvents[0].Children[0] != child {
		t.Fatalf("expected child linked under parent")
	}

	s.CloseEvent("c1", child, models.StatusSuccess, map[string]any{"k": "v"})

	events := s.GetEvents("c1", Filter{})
	if len(events) != 1 {
		t.Fatalf("expected 1 root in result, got %d", len(events))
	}
}

func TestCloseEventIdempotent(t *testing.T) {
	defer withFixedClock(t, time.Unix(0, 0))()

	s := NewStore()
	s.NewTimeline("c1")
	id := s.AddEvent("c1", models.EventToolCall, "t", "d", "", nil)

	s.CloseEvent("c1", id, models.StatusSuccess, nil)

	tl, _ := s.Get("c1")
	firstDuration := *tl.RootEvents[0].DurationS

	// Second close must be a no-op.
	s.CloseEvent("c1", id, models.StatusError, nil)

	if tl.RootEvents[0].Status != models.StatusSuccess {
		t.Fatalf("status must not change on repeated close")
	}
	if *tl.RootEvents[0].DurationS != firstDuration {
		t.Fatalf("duration must not change on repeated close")
	}
}

func TestAddEventTruncatesDescription(t *testing.T) {
	defer withFixedClock(t, time.Unix(0, 0))()

	s := NewStore()
	s.NewTimeline("c1")
	long := make([]byte, models.DescriptionMaxChars+50)
	for i := range long {
		long[i] = 'a'
	}
	id := s.AddEvent("c1", models.EventSystem, "t", string(long), "", nil)

	tl, _ := s.Get("c1")
	var evt *models.TimelineEvent
	for _, e := range tl.RootEvents {
		if e.EventID == id {
			evt = e
		}
	}
	if evt == nil {
		t.Fatalf("event not found")
	}
	if len(evt.Description) != models.DescriptionMaxChars {
		t.Fatalf("expected truncated description of %d chars, got %d", models.DescriptionMaxChars, len(evt.Description))
	}
	if evt.Metadata["full_description"] != string(long) {
		t.Fatalf("expected full description preserved in metadata")
	}
	// system events are terminal on create (no further close expected).
	if evt.Status != models.StatusSuccess {
		t.Fatalf("expected system event to be created terminal, got %s", evt.Status)
	}
}

func TestGetEventsFilterByType(t *testing.T) {
	defer withFixedClock(t, time.Unix(0, 0))()

	s := NewStore()
	s.NewTimeline("c1")
	s.AddEvent("c1", models.EventUserInput, "u", "d", "", nil)
	toolParent := s.AddEvent("c1", models.EventAgentThinking, "t", "d", "", nil)
	s.AddEvent("c1", models.EventToolCall, "tc", "d", toolParent, nil)

	wantType := models.EventToolCall
	events := s.GetEvents("c1", Filter{Type: &wantType})
	if len(events) != 1 {
		t.Fatalf("expected 1 matching root subtree, got %d", len(events))
	}
	if events[0].Type != models.EventAgentThinking {
		t.Fatalf("expected matched subtree rooted at parent event")
	}
}
