// Package acp serves an agent.Agent to editors over the Agent Client
// Protocol. Framing, request routing and JSON-RPC errors come from
// acp-go-sdk; this package maps its calls onto the agent.
package acp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	acpsdk "github.com/coder/acp-go-sdk"
	"github.com/m4xw311/acpbridge/agent"
	"github.com/m4xw311/acpbridge/config"
	"github.com/m4xw311/acpbridge/errors"
	"github.com/m4xw311/acpbridge/upstream"
	"github.com/rs/zerolog"
)

// Run serves the Agent Client Protocol over in and out until in is
// exhausted or ctx is done. Nothing but JSON-RPC is ever written to out.
//
// Supported methods:
//   - initialize
//   - session/new
//   - session/load (registers the id, no history replay)
//   - session/prompt (streams session/update notifications, answers with a stop reason)
//   - session/cancel (notification)
func Run(ctx context.Context, cfg *config.Config, up upstream.Upstream, in io.Reader, out io.Writer, log zerolog.Logger) error {
	s := &server{log: log, ready: make(chan struct{})}
	s.agent = agent.New(cfg, up, s, log)
	s.conn = acpsdk.NewAgentSideConnection(s, out, in)
	s.conn.SetLogger(slog.New(slog.NewTextHandler(log.With().Str("component", "acp-sdk").Logger(), &slog.HandlerOptions{Level: slog.LevelWarn})))
	close(s.ready)

	s.log.Info().Msg("ACP server started")
	select {
	case <-s.conn.Done():
		s.log.Info().Msg("client closed the connection")
	case <-ctx.Done():
	}
	return s.agent.Close()
}

// server adapts the agent to the SDK. The connection runs each request on
// its own goroutine, so cancel notifications and fs/read_text_file
// responses keep flowing while a prompt blocks.
type server struct {
	conn  *acpsdk.AgentSideConnection
	agent *agent.Agent
	log   zerolog.Logger
	// ready is closed once conn is set.
	ready chan struct{}
}

var (
	_ acpsdk.Agent       = (*server)(nil)
	_ acpsdk.AgentLoader = (*server)(nil)
	_ agent.Client       = (*server)(nil)
)

func (s *server) Initialize(ctx context.Context, params acpsdk.InitializeRequest) (acpsdk.InitializeResponse, error) {
	s.log.Debug().Interface("client_capabilities", params.ClientCapabilities).Msg("initialize")
	s.agent.SetClientCapabilities(params.ClientCapabilities)
	return acpsdk.InitializeResponse{
		ProtocolVersion: acpsdk.ProtocolVersionNumber,
		AgentCapabilities: acpsdk.AgentCapabilities{
			LoadSession: true,
			PromptCapabilities: acpsdk.PromptCapabilities{
				Image:           true,
				EmbeddedContext: true,
			},
		},
		AuthMethods: []acpsdk.AuthMethod{},
	}, nil
}

// Authenticate accepts every client; the upstream carries its own credentials.
func (s *server) Authenticate(ctx context.Context, params acpsdk.AuthenticateRequest) (acpsdk.AuthenticateResponse, error) {
	return acpsdk.AuthenticateResponse{}, nil
}

func (s *server) NewSession(ctx context.Context, params acpsdk.NewSessionRequest) (acpsdk.NewSessionResponse, error) {
	servers, err := mcpServers(params.McpServers)
	if err != nil {
		return acpsdk.NewSessionResponse{}, rpcError(err)
	}
	id, err := s.agent.NewSession(ctx, params.Cwd, servers)
	if err != nil {
		return acpsdk.NewSessionResponse{}, rpcError(err)
	}
	return acpsdk.NewSessionResponse{SessionId: acpsdk.SessionId(id)}, nil
}

func (s *server) LoadSession(ctx context.Context, params acpsdk.LoadSessionRequest) (acpsdk.LoadSessionResponse, error) {
	servers, err := mcpServers(params.McpServers)
	if err != nil {
		return acpsdk.LoadSessionResponse{}, rpcError(err)
	}
	if err := s.agent.LoadSession(ctx, string(params.SessionId), params.Cwd, servers); err != nil {
		return acpsdk.LoadSessionResponse{}, rpcError(err)
	}
	return acpsdk.LoadSessionResponse{}, nil
}

func (s *server) Prompt(ctx context.Context, params acpsdk.PromptRequest) (acpsdk.PromptResponse, error) {
	reason, err := s.agent.Prompt(ctx, string(params.SessionId), params.Prompt)
	if err != nil {
		s.log.Error().Err(err).Str("session_id", string(params.SessionId)).Msg("prompt failed")
		return acpsdk.PromptResponse{}, rpcError(err)
	}
	return acpsdk.PromptResponse{StopReason: reason}, nil
}

func (s *server) Cancel(ctx context.Context, params acpsdk.CancelNotification) error {
	if err := s.agent.Cancel(ctx, string(params.SessionId)); err != nil {
		s.log.Warn().Err(err).Str("session_id", string(params.SessionId)).Msg("cancel ignored")
	}
	return nil
}

// SetSessionMode is not offered; the upstream decides its own permission mode.
func (s *server) SetSessionMode(ctx context.Context, params acpsdk.SetSessionModeRequest) (acpsdk.SetSessionModeResponse, error) {
	return acpsdk.SetSessionModeResponse{}, acpsdk.NewMethodNotFound("session/set_mode")
}

// SessionUpdate sends a session/update notification.
func (s *server) SessionUpdate(ctx context.Context, n acpsdk.SessionNotification) error {
	<-s.ready
	return s.conn.SessionUpdate(ctx, n)
}

// ReadTextFile asks the client for a file through fs/read_text_file.
func (s *server) ReadTextFile(ctx context.Context, req acpsdk.ReadTextFileRequest) (acpsdk.ReadTextFileResponse, error) {
	<-s.ready
	return s.conn.ReadTextFile(ctx, req)
}

// rpcError maps bridge errors onto JSON-RPC errors. Unknown sessions are the
// client's mistake; everything else is reported as internal.
func rpcError(err error) error {
	data := map[string]any{"error": err.Error()}
	switch {
	case errors.Is(err, errors.ErrSessionNotFound), errors.Is(err, errors.ErrSessionExists), errors.Is(err, errors.ErrInvalidParams):
		return acpsdk.NewInvalidParams(data)
	default:
		return acpsdk.NewInternalError(data)
	}
}

// mcpServers converts the client's MCP server list into the upstream's shape
// through their shared wire form.
func mcpServers(servers []acpsdk.McpServer) ([]upstream.MCPServer, error) {
	if len(servers) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(servers)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidParams, "mcpServers: %v", err)
	}
	var out []upstream.MCPServer
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidParams, "mcpServers: %v", err)
	}
	return out, nil
}
