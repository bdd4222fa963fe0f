package router

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nexagent/nexagent/internal/agentloop"
	"github.com/nexagent/nexagent/internal/classifier"
	"github.com/nexagent/nexagent/internal/conversation"
	"github.com/nexagent/nexagent/internal/llm"
	"github.com/nexagent/nexagent/pkg/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind models.ErrorKind, detail string) {
	writeJSON(w, status, ErrorResponse{Error: string(kind), Detail: detail})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Nexagent conversational AI orchestration service",
		"status":  "ok",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	client := r.RemoteAddr
	if ok, retryAfter := s.healthLimiter.Allow(client); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
		writeJSON(w, http.StatusTooManyRequests, RateLimitedResponse{
			Status:     "rate_limited",
			RetryAfter: retryAfter.Seconds(),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Server:        "nexagent",
		Version:       Version,
		TimestampMs:   time.Now().UnixMilli(),
		Connections:   s.broadcaster.Count(),
		Conversations: len(s.conversations.List()),
		Client:        client,
	})
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// handleMessage drives one request through the full flow: resolve the
// conversation, append the user turn, resolve chat-vs-agent mode, run the
// matching loop (or the direct responder), append the assistant turn,
// broadcast the updated timeline, and persist.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, models.KindValidation, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, models.KindValidation, "content must not be empty")
		return
	}

	convID := s.resolveConversation(req.ConversationID, req.Content)
	tl := s.events.NewTimeline(convID)

	userTs := s.appendMessage(convID, models.RoleUser, req.Content)
	s.events.AddEvent(convID, models.EventUserInput, "user input", req.Content, "", nil)

	result := s.dispatch(r.Context(), convID, req)

	s.appendMessage(convID, models.RoleAssistant, result.Content)
	s.broadcaster.Broadcast(convID, tl)

	if result.Status == agentloop.RunError {
		writeError(w, http.StatusInternalServerError, models.KindInternal, result.Content)
		return
	}

	resp := MessageResponse{
		ID:             newMessageID(),
		Content:        result.Content,
		ConversationID: convID,
		Timestamp:      userTs,
		Timeline:       tl,
	}
	writeJSON(w, http.StatusOK, resp)
}

// resolveConversation mints a conversation if id is empty or unknown.
func (s *Server) resolveConversation(id, firstContent string) string {
	if id != "" {
		if _, ok := s.conversations.Get(id); ok {
			return id
		}
	}
	newID := id
	if newID == "" {
		newID = newMessageID()
	}
	title := conversation.DeriveTitle(firstContent)
	if _, err := s.conversations.Create(newID, title); err != nil {
		s.logger.Warn("conversation create failed", "conversation_id", newID, "error", err)
	}
	return newID
}

// timestampTracker hands out strictly increasing millisecond timestamps
// per conversation, even when two messages land in the same millisecond.
type timestampTracker struct {
	mu   sync.Mutex
	last map[string]int64
}

func newTimestampTracker() *timestampTracker {
	return &timestampTracker{last: make(map[string]int64)}
}

func (t *timestampTracker) next(conversationID string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UnixMilli()
	if prev, ok := t.last[conversationID]; ok && now <= prev {
		now = prev + 1
	}
	t.last[conversationID] = now
	return now
}

var messageTimestamps = newTimestampTracker()

// appendMessage loads, appends, and saves one message.
func (s *Server) appendMessage(convID string, role models.Role, content string) int64 {
	messages, err := s.conversations.LoadMessages(convID)
	if err != nil {
		messages = nil
	}
	ts := messageTimestamps.next(convID)
	messages = append(messages, models.Message{
		ID:          newMessageID(),
		Role:        role,
		Content:     content,
		TimestampMs: ts,
	})
	if err := s.conversations.SaveMessages(convID, messages); err != nil {
		s.logger.Warn("save messages failed", "conversation_id", convID, "error", err)
	}
	return ts
}

// dispatch resolves mode, drives the direct responder and/or agent loop,
// and returns the run result whose content is surfaced to the user.
func (s *Server) dispatch(ctx context.Context, convID string, req MessageRequest) agentloop.Result {
	mode := req.ProcessingMode
	if mode == "" {
		mode = models.ModeAuto
	}

	history := s.historyAsCompletionMessages(convID)

	switch mode {
	case models.ModeChat:
		return s.runChat(ctx, convID, req, history)
	case models.ModeAgent:
		return s.runAgent(ctx, convID, req, history)
	default: // auto
		result := s.classify(req.Content)
		if result.Kind == classifier.KindChat {
			return s.runChat(ctx, convID, req, history)
		}
		return s.runAgent(ctx, convID, req, history)
	}
}

func (s *Server) runChat(ctx context.Context, convID string, req MessageRequest, history []llm.CompletionMessage) agentloop.Result {
	if answer, ok := s.tryDirect(req.Content); ok {
		s.events.AddEvent(convID, models.EventAgentResponse, "direct response", answer, "", nil)
		return agentloop.Result{Content: answer, Status: agentloop.RunSuccess}
	}
	system := req.SystemPrompt
	if system == "" {
		system = ChatSystemPrompt
	}
	return s.chatLoop.Run(ctx, convID, system, req.Content, history)
}

func (s *Server) runAgent(ctx context.Context, convID string, req MessageRequest, history []llm.CompletionMessage) agentloop.Result {
	system := req.SystemPrompt
	if system == "" {
		system = AgentSystemPrompt
	}
	return s.agentLoop.Run(ctx, convID, system, req.Content, history)
}

func (s *Server) historyAsCompletionMessages(convID string) []llm.CompletionMessage {
	messages, err := s.conversations.LoadMessages(convID)
	if err != nil {
		return nil
	}
	out := make([]llm.CompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, llm.CompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs := s.conversations.List()
	out := make([]ConversationView, 0, len(convs))
	for _, c := range convs {
		messages, _ := s.conversations.LoadMessages(c.ID)
		out = append(out, ConversationView{
			ID:        c.ID,
			Title:     c.Title,
			Messages:  messages,
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
			UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conv, ok := s.conversations.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, models.KindNotFound, "conversation not found")
		return
	}
	messages, _ := s.conversations.LoadMessages(id)
	writeJSON(w, http.StatusOK, ConversationView{
		ID:        conv.ID,
		Title:     conv.Title,
		Messages:  messages,
		CreatedAt: conv.CreatedAt.Format(time.RFC3339),
		UpdatedAt: conv.UpdatedAt.Format(time.RFC3339),
	})
}

// handleGetTimeline returns a conversation's timeline. "mock-"/"new-"
// prefixed ids create an empty conversation on demand so a fresh client
// can open a WebSocket before the first message exists; any other unknown
// id is a 404.
func (s *Server) handleGetTimeline(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if strings.HasPrefix(id, "mock-") || strings.HasPrefix(id, "new-") {
		if _, ok := s.conversations.Get(id); !ok {
			_, _ = s.conversations.Create(id, "New conversation")
		}
		s.events.NewTimeline(id)
	} else if _, ok := s.conversations.Get(id); !ok {
		writeError(w, http.StatusNotFound, models.KindNotFound, "conversation not found")
		return
	}

	tl, ok := s.events.Get(id)
	if !ok {
		writeJSON(w, http.StatusOK, TimelineResponse{Events: []*models.TimelineEvent{}, EventCount: 0})
		return
	}
	writeJSON(w, http.StatusOK, TimelineResponse{Events: tl.RootEvents, EventCount: len(tl.RootEvents)})
}
