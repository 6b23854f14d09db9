package terminal

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coder/acp-go-sdk"
	"github.com/m4xw311/acpbridge/config"
	"github.com/m4xw311/acpbridge/upstream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockTerminal(t *testing.T, input string, verbosity Verbosity) (*Terminal, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.Backend = config.BackendMock
	cfg.LogDir = ""
	up, err := upstream.New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	var out bytes.Buffer
	return New(cfg, up, strings.NewReader(input), &out, verbosity, zerolog.Nop()), &out
}

func TestRunChatsUntilQuit(t *testing.T) {
	term, out := mockTerminal(t, "hello\n\n/quit\nnever sent\n", VerbosityNone)
	require.NoError(t, term.Run(context.Background(), t.TempDir(), "first"))

	got := out.String()
	assert.Contains(t, got, "Claude: I am a mock model. You said: 'first'.")
	assert.Contains(t, got, "Claude: I am a mock model. You said: 'hello'.")
	assert.NotContains(t, got, "never sent")
}

func TestRunStopsAtEOF(t *testing.T) {
	term, out := mockTerminal(t, "", VerbosityNone)
	require.NoError(t, term.Run(context.Background(), t.TempDir(), ""))
	assert.Equal(t, "You: ", out.String())
}

func TestSessionUpdateVerbosity(t *testing.T) {
	call := acp.StartToolCall("t1", "Bash(command: ls)",
		acp.WithStartKind(acp.ToolKindExecute),
		acp.WithStartRawInput(json.RawMessage(`{"command":"ls"}`)),
	)
	done := acp.UpdateToolCall("t1",
		acp.WithUpdateStatus(acp.ToolCallStatusCompleted),
		acp.WithUpdateContent([]acp.ToolCallContent{acp.ToolContent(acp.TextBlock("a.go")), acp.ToolDiffContent("/w/a.go", "new")}),
	)
	thought := acp.UpdateAgentThoughtText("hmm")

	tests := []struct {
		verbosity Verbosity
		want      string
	}{
		{VerbosityNone, ""},
		{VerbosityInfo, "Tool call `Bash(command: ls)`\n"},
		{VerbosityAll, "Tool call `Bash(command: ls)` [execute] input: {\"command\":\"ls\"}\nTool t1 completed: a.go\ndiff /w/a.go\n(thinking) hmm\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.verbosity), func(t *testing.T) {
			var out bytes.Buffer
			term := &Terminal{out: &out, verbosity: tt.verbosity}
			for _, u := range []acp.SessionUpdate{call, done, thought} {
				require.NoError(t, term.SessionUpdate(context.Background(), acp.SessionNotification{SessionId: "s", Update: u}))
			}
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestSessionUpdatePlan(t *testing.T) {
	var out bytes.Buffer
	term := &Terminal{out: &out, verbosity: VerbosityNone}
	plan := acp.UpdatePlan(acp.PlanEntry{Content: "Fix bug", Priority: acp.PlanEntryPriorityHigh, Status: acp.PlanEntryStatusPending})
	require.NoError(t, term.SessionUpdate(context.Background(), acp.SessionNotification{Update: plan}))
	assert.Equal(t, "Plan:\n  [pending] Fix bug (high)\n", out.String())
}

func TestReadTextFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0644))

	term := &Terminal{}
	resp, err := term.ReadTextFile(context.Background(), acp.ReadTextFileRequest{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "content", resp.Content)

	_, err = term.ReadTextFile(context.Background(), acp.ReadTextFileRequest{Path: path + ".missing"})
	assert.Error(t, err)
}

func TestParseVerbosity(t *testing.T) {
	v, err := ParseVerbosity("info")
	require.NoError(t, err)
	assert.Equal(t, VerbosityInfo, v)
	_, err = ParseVerbosity("loud")
	assert.Error(t, err)
}
