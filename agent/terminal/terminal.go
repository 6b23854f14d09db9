package terminal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/coder/acp-go-sdk"
	"github.com/m4xw311/acpbridge/agent"
	"github.com/m4xw311/acpbridge/config"
	"github.com/m4xw311/acpbridge/errors"
	"github.com/m4xw311/acpbridge/upstream"
	"github.com/rs/zerolog"
)

// Verbosity controls how much tool activity is printed.
type Verbosity string

const (
	VerbosityNone Verbosity = "none"
	VerbosityInfo Verbosity = "info"
	VerbosityAll  Verbosity = "all"
)

// ParseVerbosity validates a --tool-verbosity value.
func ParseVerbosity(s string) (Verbosity, error) {
	switch v := Verbosity(s); v {
	case VerbosityNone, VerbosityInfo, VerbosityAll:
		return v, nil
	}
	return "", errors.New("invalid tool verbosity '%s', must be 'none', 'info', or 'all'", s)
}

// Terminal handles the terminal/CLI interaction mode. It is the agent's
// client: updates are printed and files are read from the local disk.
type Terminal struct {
	agent     *agent.Agent
	in        io.Reader
	out       io.Writer
	verbosity Verbosity
}

// New creates a Terminal driving its own agent.
func New(cfg *config.Config, up upstream.Upstream, in io.Reader, out io.Writer, verbosity Verbosity, log zerolog.Logger) *Terminal {
	t := &Terminal{in: in, out: out, verbosity: verbosity}
	t.agent = agent.New(cfg, up, t, log)
	t.agent.SetClientCapabilities(acp.ClientCapabilities{Fs: acp.FileSystemCapability{ReadTextFile: true}})
	return t
}

// Run starts the interactive session in cwd. It returns when the input ends
// or the user types /quit or /exit.
func (t *Terminal) Run(ctx context.Context, cwd, initialPrompt string) error {
	defer t.agent.Close()

	sessionID, err := t.agent.NewSession(ctx, cwd, nil)
	if err != nil {
		return err
	}

	// If there's an initial prompt from the command line, use it first
	if initialPrompt != "" {
		t.processTurn(ctx, sessionID, initialPrompt)
	}

	scanner := bufio.NewScanner(t.in)
	for {
		fmt.Fprint(t.out, "You: ")
		if !scanner.Scan() {
			// EOF or read error ends the session
			break
		}

		userInput := strings.TrimSpace(scanner.Text())
		if userInput == "" {
			continue
		}
		if userInput == "/quit" || userInput == "/exit" {
			break
		}
		t.processTurn(ctx, sessionID, userInput)
	}
	return scanner.Err()
}

func (t *Terminal) processTurn(ctx context.Context, sessionID, userInput string) {
	reason, err := t.agent.Prompt(ctx, sessionID, []acp.ContentBlock{acp.TextBlock(userInput)})
	if err != nil {
		fmt.Fprintf(t.out, "Error: %v\n", err)
		return
	}
	if reason != acp.StopReasonEndTurn {
		fmt.Fprintf(t.out, "(turn ended: %s)\n", reason)
	}
}

// SessionUpdate prints one update.
func (t *Terminal) SessionUpdate(ctx context.Context, n acp.SessionNotification) error {
	u := n.Update
	switch {
	case u.AgentMessageChunk != nil:
		fmt.Fprintf(t.out, "Claude: %s\n", blockText(u.AgentMessageChunk.Content))
	case u.AgentThoughtChunk != nil:
		if t.verbosity == VerbosityAll {
			fmt.Fprintf(t.out, "(thinking) %s\n", blockText(u.AgentThoughtChunk.Content))
		}
	case u.ToolCall != nil:
		switch t.verbosity {
		case VerbosityAll:
			input, _ := json.Marshal(u.ToolCall.RawInput)
			fmt.Fprintf(t.out, "Tool call `%s` [%s] input: %s\n", u.ToolCall.Title, u.ToolCall.Kind, input)
		case VerbosityInfo:
			fmt.Fprintf(t.out, "Tool call `%s`\n", u.ToolCall.Title)
		}
	case u.ToolCallUpdate != nil:
		if t.verbosity == VerbosityAll {
			var status acp.ToolCallStatus
			if u.ToolCallUpdate.Status != nil {
				status = *u.ToolCallUpdate.Status
			}
			fmt.Fprintf(t.out, "Tool %s %s: %s\n", u.ToolCallUpdate.ToolCallId, status, toolText(u.ToolCallUpdate.Content))
		}
	case u.Plan != nil:
		fmt.Fprintln(t.out, "Plan:")
		for _, e := range u.Plan.Entries {
			fmt.Fprintf(t.out, "  [%s] %s (%s)\n", e.Status, e.Content, e.Priority)
		}
	}
	return nil
}

func blockText(b acp.ContentBlock) string {
	if b.Text != nil {
		return b.Text.Text
	}
	return ""
}

func toolText(content []acp.ToolCallContent) string {
	var parts []string
	for _, c := range content {
		switch {
		case c.Diff != nil:
			parts = append(parts, "diff "+c.Diff.Path)
		case c.Content != nil:
			parts = append(parts, blockText(c.Content.Content))
		}
	}
	return strings.Join(parts, "\n")
}

// ReadTextFile reads a linked file from the local disk.
func (t *Terminal) ReadTextFile(ctx context.Context, req acp.ReadTextFileRequest) (acp.ReadTextFileResponse, error) {
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return acp.ReadTextFileResponse{}, err
	}
	return acp.ReadTextFileResponse{Content: string(data)}, nil
}
