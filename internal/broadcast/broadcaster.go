// Package broadcast implements the timeline event broadcaster: at most
// one WebSocket subscriber per conversation, ping/ack heartbeating, and
// non-blocking fan-out from the owning conversation's writer.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nexagent/nexagent/pkg/models"
)

// Heartbeat timing: an idle subscriber is pinged every PingInterval, and
// two consecutive missed acknowledgements drop the connection.
const (
	PingInterval   = 30 * time.Second
	IdleTimeout    = 60 * time.Second
	MaxMissedAcks  = 2
	writeWait      = 10 * time.Second
)

// Conn is the minimal surface the broadcaster needs from a transport
// connection; *websocket.Conn satisfies it directly, and tests can stub it.
type Conn interface {
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Frame is the wire message shape for /api/ws/timeline/{id}.
type Frame struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Timeline       *models.Timeline `json:"timeline,omitempty"`
	TimestampMs    int64           `json:"timestamp_ms,omitempty"`
	Message        json.RawMessage `json:"message,omitempty"`
}

const (
	FrameConnectionEstablished = "connection_established"
	FrameTimelineUpdate        = "timeline_update"
	FramePing                  = "ping"
	FramePong                  = "pong"
	FrameAck                   = "ack"
)

// nowFunc is overridable in tests.
var nowFunc = time.Now

type subscriber struct {
	conn           Conn
	conversationID string
	lastPingAt     time.Time
	lastSendAt     time.Time
	missedAcks     int
	closed         bool
}

// Broadcaster owns the subscriber table: at most one live subscriber per
// conversation id.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]*subscriber

	logger *slog.Logger
}

// New creates an empty Broadcaster.
func New(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{subs: make(map[string]*subscriber), logger: logger}
}

// Register attaches a new subscriber to a conversation, gracefully closing
// any prior subscriber first with a "superseded" close frame.
func (b *Broadcaster) Register(conversationID string, conn Conn, current *models.Timeline) {
	b.mu.Lock()
	if prev, ok := b.subs[conversationID]; ok && !prev.closed {
		prev.closed = true
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "superseded")
		_ = prev.conn.WriteControl(websocket.CloseMessage, msg, nowFunc().Add(writeWait))
		_ = prev.conn.Close()
	}
	sub := &subscriber{
		conn:           conn,
		conversationID: conversationID,
		lastPingAt:     nowFunc(),
		lastSendAt:     nowFunc(),
	}
	b.subs[conversationID] = sub
	b.mu.Unlock()

	b.send(sub, &Frame{
		Type:           FrameConnectionEstablished,
		ConversationID: conversationID,
		TimestampMs:    nowFunc().UnixMilli(),
	})
	b.send(sub, &Frame{
		Type:           FrameTimelineUpdate,
		ConversationID: conversationID,
		Timeline:       current,
	})
}

// Deregister removes the subscriber for a conversation, if it is the one
// passed in (avoids racing a Register that has already superseded it).
func (b *Broadcaster) Deregister(conversationID string, conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[conversationID]; ok && sub.conn == conn {
		delete(b.subs, conversationID)
	}
}

// Broadcast pushes a timeline delta to the conversation's subscriber, if
// any. Sends never block the caller on failure: a failed send drops the
// subscription, never the producer.
func (b *Broadcaster) Broadcast(conversationID string, tl *models.Timeline) {
	b.mu.Lock()
	sub, ok := b.subs[conversationID]
	b.mu.Unlock()
	if !ok || sub.closed {
		return
	}
	b.send(sub, &Frame{
		Type:           FrameTimelineUpdate,
		ConversationID: conversationID,
		Timeline:       tl,
	})
}

func (b *Broadcaster) send(sub *subscriber, frame *Frame) {
	if err := sub.conn.WriteJSON(frame); err != nil {
		b.logger.Warn("broadcaster: send failed, dropping subscriber", "conversation_id", sub.conversationID, "error", err)
		b.drop(sub)
		return
	}
	b.mu.Lock()
	sub.lastSendAt = nowFunc()
	b.mu.Unlock()
}

func (b *Broadcaster) drop(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub.closed = true
	_ = sub.conn.Close()
	if cur, ok := b.subs[sub.conversationID]; ok && cur == sub {
		delete(b.subs, sub.conversationID)
	}
}

// HandleClientFrame processes an inbound frame from a subscriber. Any
// inbound traffic resets the miss counter; unknown frame types are
// ack'd back.
func (b *Broadcaster) HandleClientFrame(conversationID string, raw []byte) {
	b.mu.Lock()
	sub, ok := b.subs[conversationID]
	b.mu.Unlock()
	if !ok {
		return
	}

	var frame Frame
	_ = json.Unmarshal(raw, &frame)

	b.mu.Lock()
	sub.missedAcks = 0
	b.mu.Unlock()

	switch frame.Type {
	case FramePong, FrameAck:
		return
	default:
		b.send(sub, &Frame{Type: FrameAck, Message: raw})
	}
}

// Tick runs one heartbeat pass across all subscribers: sends a ping to any
// subscriber idle longer than PingInterval, and drops any subscriber that
// has missed MaxMissedAcks consecutive acknowledgements.
func (b *Broadcaster) Tick() {
	now := nowFunc()

	b.mu.Lock()
	var toPing []*subscriber
	var toDrop []*subscriber
	for _, sub := range b.subs {
		if sub.closed {
			continue
		}
		if now.Sub(sub.lastSendAt) > PingInterval {
			if sub.missedAcks >= MaxMissedAcks {
				toDrop = append(toDrop, sub)
				continue
			}
			toPing = append(toPing, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range toDrop {
		b.drop(sub)
	}
	for _, sub := range toPing {
		b.mu.Lock()
		sub.missedAcks++
		sub.lastPingAt = now
		b.mu.Unlock()
		b.send(sub, &Frame{Type: FramePing, TimestampMs: now.UnixMilli()})
	}
}

// Count returns the number of live subscribers, for health reporting.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subs {
		if !s.closed {
			n++
		}
	}
	return n
}

// Run starts a ticking loop that calls Tick every PingInterval until stop
// is closed. Intended to be started once at server startup.
func (b *Broadcaster) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.Tick()
		}
	}
}
