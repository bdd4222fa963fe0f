// Command nexagent runs the conversational AI orchestration service:
// an HTTP/WebSocket API fronting a conversation manager, a
// classifier-gated direct responder, and an agent loop backed by a
// browser pipeline and tool registry.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexagent/nexagent/internal/broadcast"
	"github.com/nexagent/nexagent/internal/browser"
	"github.com/nexagent/nexagent/internal/conversation"
	"github.com/nexagent/nexagent/internal/llm"
	"github.com/nexagent/nexagent/internal/router"
	"github.com/nexagent/nexagent/internal/timeline"
	"github.com/nexagent/nexagent/internal/tools"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "nexagent",
		Short:        "Nexagent - conversational AI orchestration service",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	cmd.AddCommand(buildServeCmd(), buildVersionCmd())
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "nexagent %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}

func buildServeCmd() *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
			}
			return runServe(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug-level logging")
	return cmd
}

// envOr returns the environment variable's value, or fallback if unset or
// empty.
func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func runServe(ctx context.Context) error {
	dataRoot := envOr("NEXAGENT_DATA_ROOT", "./data_store")
	host := envOr("NEXAGENT_HOST", "127.0.0.1")
	port := envOr("NEXAGENT_PORT", "8000")

	slog.Info("starting nexagent", "version", version, "data_root", dataRoot, "addr", host+":"+port)

	events := timeline.NewStore()
	broadcaster := broadcast.New(slog.Default())
	convManager := conversation.New(dataRoot, conversation.NoopPDFRenderer{})

	provider, err := buildProvider()
	if err != nil {
		return fmt.Errorf("configure LLM provider: %w", err)
	}

	agentRegistry := tools.NewRegistry()
	if err := agentRegistry.Register(tools.TerminateTool{}); err != nil {
		return fmt.Errorf("register terminate tool: %w", err)
	}
	if err := agentRegistry.Register(tools.WebSearchTool{Search: buildSearchFunc()}); err != nil {
		return fmt.Errorf("register web_search tool: %w", err)
	}
	if pipeline := buildBrowserPipeline(); pipeline != nil {
		if err := agentRegistry.Register(tools.BrowserTool{Pipeline: pipeline}); err != nil {
			return fmt.Errorf("register browser tool: %w", err)
		}
		if err := agentRegistry.Register(tools.WebBrowseTool{Driver: pipeline.Primary()}); err != nil {
			return fmt.Errorf("register web_browse tool: %w", err)
		}
	}
	agentDispatcher := tools.NewDispatcher(agentRegistry, events)

	// Chat mode is non-tool-using beyond the terminate sentinel.
	chatRegistry := tools.NewRegistry()
	if err := chatRegistry.Register(tools.TerminateTool{}); err != nil {
		return fmt.Errorf("register chat terminate tool: %w", err)
	}
	chatDispatcher := tools.NewDispatcher(chatRegistry, events)

	srv := router.New(router.Config{
		Conversations:  convManager,
		Events:         events,
		Broadcaster:    broadcaster,
		Provider:       provider,
		Registry:       agentRegistry,
		Dispatcher:     agentDispatcher,
		ChatRegistry:   chatRegistry,
		ChatDispatcher: chatDispatcher,
		Logger:         slog.Default(),
	})

	httpServer := &http.Server{
		Addr:              host + ":" + port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan struct{})
	go broadcaster.Run(stop)
	defer close(stop)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	slog.Info("nexagent started", "addr", httpServer.Addr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	slog.Info("shutdown signal received, draining connections")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	slog.Info("nexagent stopped gracefully")
	return nil
}

// buildProvider selects an LLM backend from NEXAGENT_LLM_PROVIDER
// ("anthropic", the default, or "openai"), reading its API key from the
// provider's conventional environment variable.
func buildProvider() (llm.Provider, error) {
	switch envOr("NEXAGENT_LLM_PROVIDER", "anthropic") {
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		return llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:       apiKey,
			DefaultModel: envOr("NEXAGENT_LLM_MODEL", "gpt-4o"),
		}), nil
	default:
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
		return llm.NewAnthropicProvider(llm.AnthropicConfig{
			APIKey:       apiKey,
			DefaultModel: envOr("NEXAGENT_LLM_MODEL", "claude-3-5-sonnet-latest"),
		})
	}
}

// buildSearchFunc wires the web_search tool to an external search API if
// NEXAGENT_SEARCH_URL is configured; otherwise the tool always reports "no
// search backend configured" rather than the server failing to start.
func buildSearchFunc() func(ctx context.Context, query string) (string, error) {
	endpoint := os.Getenv("NEXAGENT_SEARCH_URL")
	if endpoint == "" {
		return nil
	}
	client := &http.Client{Timeout: 15 * time.Second}
	return func(ctx context.Context, query string) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?q="+url.QueryEscape(query), nil)
		if err != nil {
			return "", err
		}
		resp, err := client.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("search backend returned status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err != nil {
			return "", err
		}
		return string(body), nil
	}
}

// buildBrowserPipeline wires the playwright driver as tier-1 and the rod
// driver as the fallback engine. If playwright fails to launch, there is
// no browser tool rather than a failed startup, so the service still
// serves chat-mode traffic; if only rod fails, the pipeline runs without a
// fallback engine.
func buildBrowserPipeline() *browser.Pipeline {
	primary, err := browser.NewPlaywrightDriver(browser.PlaywrightConfig{
		Headless: true,
		Timeout:  30 * time.Second,
	})
	if err != nil {
		slog.Warn("playwright driver unavailable, browser tool disabled", "error", err)
		return nil
	}

	var fallback browser.Driver
	if rodDriver, err := browser.NewRodDriver(browser.RodConfig{Headless: true}); err == nil {
		fallback = rodDriver
	} else {
		slog.Warn("rod fallback driver unavailable", "error", err)
	}

	var proxies *browser.ProxyPool
	if raw := os.Getenv("NEXAGENT_PROXIES"); raw != "" {
		proxies = browser.NewProxyPool(strings.Split(raw, ","))
	}

	return browser.NewPipeline(browser.PipelineConfig{}, primary, fallback, proxies, nil, buildSearchFunc())
}

func init() {
	// Guard against a stray NEXAGENT_PORT that isn't numeric; warn and fall
	// back to the default port rather than producing a confusing net.Listen
	// error.
	if p := os.Getenv("NEXAGENT_PORT"); p != "" {
		if _, err := strconv.Atoi(p); err != nil {
			slog.Warn("NEXAGENT_PORT is not numeric, using default 8000", "value", p)
			os.Unsetenv("NEXAGENT_PORT")
		}
	}
}
