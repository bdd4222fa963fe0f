package broadcast

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nexagent/nexagent/pkg/models"
)

type fakeConn struct {
	sent    []any
	control [][]byte
	closed  bool
	failOn  int
}

func (f *fakeConn) WriteJSON(v any) error {
	if f.failOn > 0 && len(f.sent)+1 == f.failOn {
		return errors.New("write failed")
	}
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	f.control = append(f.control, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestRegisterSendsInitialFrames(t *testing.T) {
	b := New(nil)
	conn := &fakeConn{}
	b.Register("c1", conn, &models.Timeline{ConversationID: "c1"})

	if len(conn.sent) != 2 {
		t.Fatalf("expected connection_established + timeline_update, got %d frames", len(conn.sent))
	}
	first := conn.sent[0].(*Frame)
	if first.Type != FrameConnectionEstablished {
		t.Fatalf("expected connection_established first, got %s", first.Type)
	}
	second := conn.sent[1].(*Frame)
	if second.Type != FrameTimelineUpdate {
		t.Fatalf("expected timeline_update second, got %s", second.Type)
	}
}

func TestRegisterSupersedesPriorSubscriber(t *testing.T) {
	b := New(nil)
	conn1 := &fakeConn{}
	conn2 := &fakeConn{}

	b.Register("c1", conn1, &models.Timeline{})
	b.Register("c1", conn2, &models.Timeline{})

	if !conn1.closed {
		t.Fatalf("expected prior subscriber to be closed on supersession")
	}
	if len(conn1.control) != 1 || !strings.Contains(string(conn1.control[0]), "superseded") {
		t.Fatalf("expected a close frame with reason superseded, got %q", conn1.control)
	}
	if b.Count() != 1 {
		t.Fatalf("expected exactly one live subscriber, got %d", b.Count())
	}

	b.Broadcast("c1", &models.Timeline{ConversationID: "c1"})
	if len(conn2.sent) != 3 {
		t.Fatalf("expected new subscriber to receive the broadcast, got %d frames", len(conn2.sent))
	}
	if len(conn1.sent) != 2 {
		t.Fatalf("expected superseded subscriber to receive no further frames")
	}
}

func TestBroadcastDropsOnSendFailure(t *testing.T) {
	b := New(nil)
	conn := &fakeConn{failOn: 3}
	b.Register("c1", conn, &models.Timeline{})

	b.Broadcast("c1", &models.Timeline{})

	if !conn.closed {
		t.Fatalf("expected connection to be closed after failed send")
	}
	if b.Count() != 0 {
		t.Fatalf("expected subscriber to be dropped after failed send")
	}
}

func TestTickPingsIdleSubscriberAndDropsAfterMissedAcks(t *testing.T) {
	start := time.Unix(0, 0)
	cur := start
	nowFunc = func() time.Time { return cur }
	defer func() { nowFunc = time.Now }()

	b := New(nil)
	conn := &fakeConn{}
	b.Register("c1", conn, &models.Timeline{})

	cur = cur.Add(PingInterval + time.Second)
	b.Tick()
	if len(conn.sent) != 3 {
		t.Fatalf("expected a ping frame to be sent, got %d frames", len(conn.sent))
	}

	cur = cur.Add(PingInterval + time.Second)
	b.Tick()
	if len(conn.sent) != 4 {
		t.Fatalf("expected a second ping, got %d frames", len(conn.sent))
	}

	cur = cur.Add(PingInterval + time.Second)
	b.Tick()
	if b.Count() != 0 {
		t.Fatalf("expected subscriber dropped after missing %d acks", MaxMissedAcks)
	}
}

func TestHandleClientFrameResetsAckCounterAndAcksUnknown(t *testing.T) {
	b := New(nil)
	conn := &fakeConn{}
	b.Register("c1", conn, &models.Timeline{})

	b.HandleClientFrame("c1", []byte(`{"type":"something_else"}`))
	if len(conn.sent) != 3 {
		t.Fatalf("expected an ack frame to be sent for unknown type")
	}
	last := conn.sent[2].(*Frame)
	if last.Type != FrameAck {
		t.Fatalf("expected ack frame, got %s", last.Type)
	}
}
