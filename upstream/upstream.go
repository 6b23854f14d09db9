// Package upstream talks to the model side of the bridge. The default
// backend drives the Claude Code CLI in stream-json mode; the API backends
// (Anthropic, Bedrock, OpenAI, Gemini) emulate the same event stream over a
// single completion so the rest of the bridge cannot tell them apart.
package upstream

import (
	"context"

	"github.com/m4xw311/acpbridge/config"
	"github.com/m4xw311/acpbridge/errors"
	"github.com/rs/zerolog"
)

// QueryRequest describes one turn sent upstream.
type QueryRequest struct {
	// Prompt is sent as a single user message.
	Prompt []Block
	// ResumeSessionID continues an earlier upstream session when set.
	ResumeSessionID string
	Cwd             string
	MCPServers      []MCPServer
}

// MCPServer is an MCP server the client wants a session to use. Stdio
// servers set Command; http and sse servers set Type and URL.
type MCPServer struct {
	Name    string     `json:"name"`
	Command string     `json:"command,omitempty"`
	Args    []string   `json:"args,omitempty"`
	Env     []KeyValue `json:"env,omitempty"`
	Type    string     `json:"type,omitempty"`
	URL     string     `json:"url,omitempty"`
	Headers []KeyValue `json:"headers,omitempty"`
}

// KeyValue is an environment variable or an HTTP header.
type KeyValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Upstream starts queries.
type Upstream interface {
	Query(ctx context.Context, req QueryRequest) (Query, error)
}

// Query is a live event stream for one turn. Next returns io.EOF once the
// stream is exhausted. Close stops the query early and releases its
// resources; it is safe to call more than once.
type Query interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Upstream, error) {
	log = log.With().Str("backend", cfg.Backend).Logger()
	switch cfg.Backend {
	case config.BackendClaudeCode, "":
		return NewClaudeCode(cfg.ClaudeCode, cfg.Model, cfg.SystemPrompt, log), nil
	case config.BackendAnthropic:
		c, err := newAnthropicCompleter(cfg.Model, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		return newAPIUpstream(c, cfg.Model, cfg.SystemPrompt, log), nil
	case config.BackendBedrock:
		c, err := newBedrockCompleter(ctx, cfg.Model, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		return newAPIUpstream(c, cfg.Model, cfg.SystemPrompt, log), nil
	case config.BackendOpenAI:
		c, err := newOpenAICompleter(cfg.Model)
		if err != nil {
			return nil, err
		}
		return newAPIUpstream(c, cfg.Model, cfg.SystemPrompt, log), nil
	case config.BackendGemini:
		c, err := newGeminiCompleter(ctx, cfg.Model)
		if err != nil {
			return nil, err
		}
		return newAPIUpstream(c, cfg.Model, cfg.SystemPrompt, log), nil
	case config.BackendMock:
		return newAPIUpstream(echoCompleter{}, "mock", cfg.SystemPrompt, log), nil
	default:
		return nil, errors.New("unknown backend %q", cfg.Backend)
	}
}
