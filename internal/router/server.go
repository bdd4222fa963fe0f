// Package router implements the HTTP/WebSocket API surface: it accepts a
// message request, resolves direct vs. agentic handling, and wires the
// result through the timeline, broadcaster, and conversation manager.
// Every collaborator is injected explicitly into Server rather than
// reached through package-level state.
package router

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nexagent/nexagent/internal/agentloop"
	"github.com/nexagent/nexagent/internal/broadcast"
	"github.com/nexagent/nexagent/internal/classifier"
	"github.com/nexagent/nexagent/internal/conversation"
	"github.com/nexagent/nexagent/internal/direct"
	"github.com/nexagent/nexagent/internal/llm"
	"github.com/nexagent/nexagent/internal/timeline"
	"github.com/nexagent/nexagent/internal/tools"
)

// Version is the server's reported version string.
const Version = "0.1.0"

// ChatSystemPrompt and AgentSystemPrompt are the default system prompts
// handed to the agent loop for each mode.
const (
	ChatSystemPrompt  = "You are Nexagent in chat mode. Answer directly and conversationally; you have no tools available besides signaling completion."
	AgentSystemPrompt = "You are Nexagent in agent mode. Plan and execute tool calls as needed to satisfy the user's request, then call terminate when done."
)

// Server wires the classifier, direct responder, agent loops, timeline
// store, broadcaster, and conversation manager behind the HTTP/WebSocket
// surface.
type Server struct {
	conversations *conversation.Manager
	events        *timeline.Store
	broadcaster   *broadcast.Broadcaster
	chatLoop      *agentloop.Loop
	agentLoop     *agentloop.Loop
	logger        *slog.Logger
	startedAt     time.Time

	healthLimiter *clientLimiters
	upgrader      websocket.Upgrader
}

// Config assembles a Server's dependencies. Registry/Dispatcher feed the
// agent-mode loop; ChatRegistry/ChatDispatcher feed the chat-mode loop,
// which carries only the terminate sentinel.
type Config struct {
	Conversations  *conversation.Manager
	Events         *timeline.Store
	Broadcaster    *broadcast.Broadcaster
	Provider       llm.Provider
	Registry       *tools.Registry
	Dispatcher     *tools.Dispatcher
	ChatRegistry   *tools.Registry
	ChatDispatcher *tools.Dispatcher
	Logger         *slog.Logger
}

// New assembles a Server from Config, constructing the chat-mode and
// agent-mode loops over the shared timeline store and LLM provider.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	controller := agentloop.NewController()

	agentLoop := agentloop.New(agentloop.Config{
		Provider:   cfg.Provider,
		Registry:   cfg.Registry,
		Dispatcher: cfg.Dispatcher,
		Events:     cfg.Events,
		Controller: controller,
		Logger:     cfg.Logger,
	})
	chatLoop := agentloop.New(agentloop.Config{
		Provider:   cfg.Provider,
		Registry:   cfg.ChatRegistry,
		Dispatcher: cfg.ChatDispatcher,
		Events:     cfg.Events,
		Controller: controller,
		Logger:     cfg.Logger,
	})

	return &Server{
		conversations: cfg.Conversations,
		events:        cfg.Events,
		broadcaster:   cfg.Broadcaster,
		chatLoop:      chatLoop,
		agentLoop:     agentLoop,
		logger:        cfg.Logger,
		startedAt:     time.Now(),
		healthLimiter: newClientLimiters(10, 10*time.Second),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Controller exposes the shared run controller so callers can wire up
// per-conversation cancellation.
func (s *Server) Controller() *agentloop.Controller { return s.agentLoop.Controller() }

// classify exposes the classifier for mode resolution in dispatch; kept as a thin method so Server remains the single place
// request handling is wired from.
func (s *Server) classify(prompt string) classifier.Result { return classifier.Classify(prompt) }

// tryDirect exposes the direct responder, mirroring classify above.
func (s *Server) tryDirect(prompt string) (string, bool) { return direct.TryAnswer(prompt) }

// Routes builds the HTTP handler tree using net/http pattern-based
// routing (method + path-parameter patterns).
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/message", s.handleMessage)
	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("GET /api/conversations/{id}/timeline", s.handleGetTimeline)
	mux.HandleFunc("GET /api/ws/timeline/{id}", s.handleWebSocket)
	return s.withLogging(mux)
}

// withLogging wraps every request with structured access logging.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the wrapped writer so the WebSocket upgrade
// works behind withLogging.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
	}
	return h.Hijack()
}

func newMessageID() string { return uuid.NewString() }
