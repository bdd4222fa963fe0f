// Package agentloop implements the iterative "think -> tool-call ->
// observe -> think" state machine driven against an LLM provider, with
// dynamic step budgeting, cooperative cancellation, and a terminate
// sentinel tool. The step budget is computed once per run from the user
// prompt rather than being a static config field.
package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nexagent/nexagent/internal/llm"
	"github.com/nexagent/nexagent/internal/timeline"
	"github.com/nexagent/nexagent/internal/tools"
	"github.com/nexagent/nexagent/pkg/models"
)

// Phase is one state in the think/act state machine.
type Phase string

const (
	PhaseInit         Phase = "init"
	PhaseStream       Phase = "stream"
	PhaseExecuteTools Phase = "execute_tools"
	PhaseContinue     Phase = "continue"
	PhaseComplete     Phase = "complete"
	PhaseStopped      Phase = "stopped"
)

// Per-call timeouts.
const (
	DefaultToolTimeout    = 30 * time.Second
	ModelLoadToolTimeout  = 60 * time.Second
	DefaultLLMTimeout     = 60 * time.Second
)

// modelLoadHeavyTools lists tools that may spend most of their budget
// waiting on a cold engine and get the extended timeout.
var modelLoadHeavyTools = map[string]bool{
	tools.BrowserToolName:   true,
	tools.WebBrowseToolName: true,
}

// State is the mutable state of one agent run.
type State struct {
	ConversationID string
	Step           int
	MaxSteps       int
	History        []llm.CompletionMessage
	TimelineRef    string

	cancelled atomic.Bool
}

// Cancel marks the run cancelled; the loop reacts at the top of its next
// iteration. An in-flight tool call is allowed to complete or time out,
// never force-killed.
func (s *State) Cancel() { s.cancelled.Store(true) }

// Cancelled reports whether Cancel has been called for this run.
func (s *State) Cancelled() bool { return s.cancelled.Load() }

// Controller tracks live runs by conversation id so an external caller can
// cancel one without holding a direct reference to its State.
type Controller struct {
	runs ctrlMap
}

// NewController creates an empty run controller.
func NewController() *Controller {
	return &Controller{runs: newCtrlMap()}
}

func (c *Controller) register(conversationID string, state *State) {
	c.runs.set(conversationID, state)
}

func (c *Controller) unregister(conversationID string, state *State) {
	c.runs.deleteIfSame(conversationID, state)
}

// Cancel marks the run for conversationID cancelled, if one is active.
func (c *Controller) Cancel(conversationID string) {
	if state, ok := c.runs.get(conversationID); ok {
		state.Cancel()
	}
}

// Run outcome statuses.
const (
	RunSuccess = "success"
	RunStopped = "stopped"
	RunError   = "error"
)

// Result is what Run returns: the final surfaced content and whether the
// run completed normally, was stopped (budget/cancel), or errored.
type Result struct {
	Content  string
	Status   string // RunSuccess, RunStopped, or RunError
	Steps    int
	MaxSteps int
}

// requiredInputKeywords lists intent phrases that gate the loop: if one
// matches and the prompt carries no quantity/item token, the run is
// short-circuited with a request for the missing detail.
var requiredInputKeywords = []string{
	"add to cart", "order", "buy", "find", "search for",
}

var quantityItemPattern = regexpMustCompileQuantity()

// Loop drives the think -> act -> observe cycle for one conversation turn
// against the LLM provider, dispatching tool calls through the registry.
type Loop struct {
	provider   llm.Provider
	registry   *tools.Registry
	dispatcher *tools.Dispatcher
	events     *timeline.Store
	controller *Controller
	logger     *slog.Logger

	model string
}

// Config configures a Loop.
type Config struct {
	Provider   llm.Provider
	Registry   *tools.Registry
	Dispatcher *tools.Dispatcher
	Events     *timeline.Store
	Controller *Controller
	Logger     *slog.Logger
	Model      string
}

// New creates a Loop from Config.
func New(cfg Config) *Loop {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Controller == nil {
		cfg.Controller = NewController()
	}
	return &Loop{
		provider:   cfg.Provider,
		registry:   cfg.Registry,
		dispatcher: cfg.Dispatcher,
		events:     cfg.Events,
		controller: cfg.Controller,
		logger:     cfg.Logger,
		model:      cfg.Model,
	}
}

// Controller exposes the Loop's run controller so a router can wire
// cancel(conversation_id) to it.
func (l *Loop) Controller() *Controller { return l.controller }

// Run drives one full agent turn for conversationID: it computes the
// dynamic step budget, checks the required-input gate, then iterates
// think -> act -> observe until completion, cancellation, or budget
// exhaustion.
func (l *Loop) Run(ctx context.Context, conversationID, systemPrompt, userPrompt string, history []llm.CompletionMessage) Result {
	state := &State{
		ConversationID: conversationID,
		MaxSteps:       ComputeMaxSteps(userPrompt),
		History:        append(append([]llm.CompletionMessage{}, history...), llm.CompletionMessage{Role: "user", Content: userPrompt}),
	}

	l.controller.register(conversationID, state)
	defer l.controller.unregister(conversationID, state)

	if reply, gated := requiredInputGate(userPrompt); gated {
		if l.events != nil {
			l.events.AddEvent(conversationID, models.EventAgentResponse, "missing info", reply, "", nil)
		}
		return Result{Content: reply, Status: RunSuccess, Steps: 0, MaxSteps: state.MaxSteps}
	}

	if l.events != nil {
		l.events.AddEvent(conversationID, models.EventAgentStart, "run started", userPrompt, "", map[string]any{"max_steps": state.MaxSteps})
	}

	for {
		if state.Cancelled() {
			if l.events != nil {
				l.events.AddEvent(conversationID, models.EventAgentError, "cancelled", "cancelled", "", map[string]any{"error_kind": string(models.KindCancelled)})
			}
			return Result{Content: lastAssistantText(state.History), Status: RunStopped, Steps: state.Step, MaxSteps: state.MaxSteps}
		}
		if state.Step >= state.MaxSteps {
			if l.events != nil {
				l.events.AddEvent(conversationID, models.EventAgentError, "step budget exhausted", "step budget exhausted", "", nil)
			}
			return Result{Content: lastAssistantText(state.History), Status: RunStopped, Steps: state.Step, MaxSteps: state.MaxSteps}
		}

		thinkEventID := ""
		if l.events != nil {
			thinkEventID = l.events.AddEvent(conversationID, models.EventAgentThinking, "thinking", fmt.Sprintf("step %d", state.Step), "", nil)
		}

		text, toolCalls, err := l.think(ctx, systemPrompt, state)
		if l.events != nil {
			status := models.StatusSuccess
			meta := map[string]any{"text": text}
			if err != nil {
				status = models.StatusError
				meta = map[string]any{"error": err.Error()}
			}
			l.events.CloseEvent(conversationID, thinkEventID, status, meta)
		}
		if err != nil {
			return Result{Content: fmt.Sprintf("I encountered an error while processing your request: %v", err), Status: RunError, Steps: state.Step, MaxSteps: state.MaxSteps}
		}

		state.Step++

		if len(toolCalls) == 0 {
			state.History = append(state.History, llm.CompletionMessage{Role: "assistant", Content: text})
			surfaced := formatResponse(text)
			if l.events != nil {
				l.events.AddEvent(conversationID, models.EventAgentResponse, "response", surfaced, "", map[string]any{"full_content": text})
			}
			return Result{Content: surfaced, Status: RunSuccess, Steps: state.Step, MaxSteps: state.MaxSteps}
		}

		terminated, terminateResult := l.executeTools(ctx, conversationID, thinkEventID, state, toolCalls)
		if terminated {
			surfaced := formatResponse(terminateResult)
			if l.events != nil {
				l.events.AddEvent(conversationID, models.EventAgentStop, "terminated", surfaced, "", nil)
			}
			return Result{Content: surfaced, Status: RunSuccess, Steps: state.Step, MaxSteps: state.MaxSteps}
		}
	}
}

// think invokes the LLM with the current history and system prompt,
// draining the provider's streaming chunks into one text blob and a set
// of requested tool calls.
func (l *Loop) think(ctx context.Context, systemPrompt string, state *State) (string, []models.ToolCall, error) {
	callCtx, cancel := context.WithTimeout(ctx, DefaultLLMTimeout)
	defer cancel()

	req := &llm.CompletionRequest{
		Model:    l.model,
		System:   systemPrompt,
		Messages: state.History,
	}
	if l.registry != nil {
		req.Tools = l.registry.AsDeclarations()
	}

	chunks, err := l.provider.Complete(callCtx, req)
	if err != nil {
		return "", nil, err
	}

	var text strings.Builder
	var toolCalls []models.ToolCall
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", nil, chunk.Error
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
		}
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, *chunk.ToolCall)
		}
		if chunk.Done {
			break
		}
	}
	return text.String(), toolCalls, nil
}

// executeTools dispatches each requested tool call, appending results to
// history. It returns (true, finalText) if one of the calls was the
// terminate sentinel.
func (l *Loop) executeTools(ctx context.Context, conversationID, parentEventID string, state *State, calls []models.ToolCall) (bool, string) {
	var results []models.ToolResult
	terminated := false
	var terminateDetail string

	for _, call := range calls {
		timeout := DefaultToolTimeout
		if modelLoadHeavyTools[call.Name] {
			timeout = ModelLoadToolTimeout
		}

		result := l.dispatcher.Dispatch(ctx, call.Name, call.Input, tools.DispatchOptions{
			CheckDeps:      true,
			Timeout:        timeout,
			ConversationID: conversationID,
			ParentEventID:  parentEventID,
		})
		result.ToolCallID = call.ID
		results = append(results, result)

		if call.Name == tools.TerminateToolName && !result.IsError() {
			terminated = true
			terminateDetail = terminateText(call.Input, result.Output)
		}
	}

	state.History = append(state.History, llm.CompletionMessage{
		Role:        "tool",
		ToolCalls:   calls,
		ToolResults: results,
	})

	return terminated, terminateDetail
}

func terminateText(args json.RawMessage, output string) string {
	var parsed struct {
		Status string `json:"status"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(args, &parsed); err == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return output
}

func lastAssistantText(history []llm.CompletionMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "assistant" && history[i].Content != "" {
			return history[i].Content
		}
	}
	return ""
}

// finalOutputHeading is the section marker response post-processing
// looks for.
const finalOutputHeading = "## Final Output"

// formatResponse surfaces only the `## Final Output` section if present;
// else only the final `\n\n\n`-separated block if present; else the whole
// content. The full unredacted content is kept in timeline metadata by
// the caller.
func formatResponse(content string) string {
	if idx := strings.Index(content, finalOutputHeading); idx >= 0 {
		section := content[idx+len(finalOutputHeading):]
		if next := strings.Index(section, "\n## "); next >= 0 {
			section = section[:next]
		}
		return strings.TrimSpace(section)
	}
	if strings.Contains(content, "\n\n\n") {
		parts := strings.Split(content, "\n\n\n")
		return strings.TrimSpace(parts[len(parts)-1])
	}
	return content
}

// requiredInputGate scans prompt for intent keywords with no accompanying
// quantity/item specificity, short-circuiting the loop before it starts.
func requiredInputGate(prompt string) (string, bool) {
	lower := strings.ToLower(prompt)
	matched := ""
	for _, kw := range requiredInputKeywords {
		if strings.Contains(lower, kw) {
			matched = kw
			break
		}
	}
	if matched == "" {
		return "", false
	}
	if quantityItemPattern.MatchString(prompt) {
		return "", false
	}
	return fmt.Sprintf("Could you tell me more specifically what you'd like to %s? I need a specific item and quantity to proceed.", matched), true
}
