package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/m4xw311/acpbridge/config"
	"github.com/m4xw311/acpbridge/errors"
	"github.com/rs/zerolog"
)

// ClaudeCode runs one `claude -p` process per query. The prompt is written
// to the process stdin as a stream-json user message and the events are read
// back from stdout until it closes.
type ClaudeCode struct {
	Path           string
	ExtraArgs      []string
	Model          string
	PermissionMode string
	SystemPrompt   string

	log zerolog.Logger
}

func NewClaudeCode(cfg config.ClaudeCode, model, systemPrompt string, log zerolog.Logger) *ClaudeCode {
	path := cfg.Path
	if path == "" {
		path = "claude"
	}
	return &ClaudeCode{
		Path:           path,
		ExtraArgs:      cfg.Args,
		Model:          model,
		PermissionMode: cfg.PermissionMode,
		SystemPrompt:   systemPrompt,
		log:            log,
	}
}

// Args returns the command line for req, without the program name.
func (c *ClaudeCode) Args(req QueryRequest) ([]string, error) {
	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
	}
	if c.Model != "" {
		args = append(args, "--model", c.Model)
	}
	if c.PermissionMode != "" {
		args = append(args, "--permission-mode", c.PermissionMode)
	}
	if c.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", c.SystemPrompt)
	}
	if req.ResumeSessionID != "" {
		args = append(args, "--resume", req.ResumeSessionID)
	}
	if len(req.MCPServers) > 0 {
		mcp, err := mcpConfig(req.MCPServers)
		if err != nil {
			return nil, err
		}
		args = append(args, "--mcp-config", mcp)
	}
	return append(args, c.ExtraArgs...), nil
}

// mcpConfig renders the client's MCP servers in the CLI's --mcp-config shape.
func mcpConfig(servers []MCPServer) (string, error) {
	out := make(map[string]map[string]any, len(servers))
	for _, s := range servers {
		entry := map[string]any{}
		if s.Command != "" {
			entry["type"] = "stdio"
			entry["command"] = s.Command
			entry["args"] = s.Args
			env := map[string]string{}
			for _, e := range s.Env {
				env[e.Name] = e.Value
			}
			entry["env"] = env
		} else {
			entry["type"] = s.Type
			entry["url"] = s.URL
			headers := map[string]string{}
			for _, h := range s.Headers {
				headers[h.Name] = h.Value
			}
			entry["headers"] = headers
		}
		out[s.Name] = entry
	}
	data, err := json.Marshal(map[string]any{"mcpServers": out})
	if err != nil {
		return "", errors.Wrapf(err, "could not encode MCP servers")
	}
	return string(data), nil
}

func (c *ClaudeCode) Query(ctx context.Context, req QueryRequest) (Query, error) {
	args, err := c.Args(req)
	if err != nil {
		return nil, err
	}
	input, err := json.Marshal(map[string]any{
		"type":    "user",
		"message": Message{Role: "user", Content: req.Prompt},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not encode prompt")
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Dir = req.Cwd
	q := &cliQuery{cmd: cmd, cancel: cancel, log: c.log}
	cmd.Stderr = &q.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "could not open stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "could not open stdout")
	}
	c.log.Debug().Strs("args", args).Str("cwd", req.Cwd).Msg("starting claude")
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, errors.Wrapf(err, "could not start %s", c.Path)
	}
	q.stdout = bufio.NewReader(stdout)

	// One user message, then EOF so the CLI runs a single turn.
	go func() {
		defer stdin.Close()
		if _, err := stdin.Write(append(input, '\n')); err != nil {
			c.log.Warn().Err(err).Msg("could not write prompt to claude")
		}
	}()
	return q, nil
}

type cliQuery struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout *bufio.Reader
	stderr bytes.Buffer
	log    zerolog.Logger

	waitOnce sync.Once
	waitErr  error
}

func (q *cliQuery) wait() error {
	q.waitOnce.Do(func() {
		q.waitErr = q.cmd.Wait()
	})
	return q.waitErr
}

func (q *cliQuery) Next(ctx context.Context) (Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := q.stdout.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			ev, perr := ParseEvent(line)
			if perr != nil {
				q.log.Warn().Err(perr).Bytes("line", line).Msg("skipping malformed upstream line")
			} else {
				return ev, nil
			}
		}
		if err == io.EOF {
			if werr := q.wait(); werr != nil && ctx.Err() == nil {
				return nil, errors.Wrapf(werr, "claude exited: %s", strings.TrimSpace(q.stderr.String()))
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, errors.Wrapf(err, "could not read claude output")
		}
	}
}

func (q *cliQuery) Close() error {
	q.cancel()
	_ = q.wait()
	return nil
}
