package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootServesACP(t *testing.T) {
	in, client := io.Pipe()
	replies, out := io.Pipe()
	cmd := newRootCmd()
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--backend", "mock", "--log-dir", t.TempDir()})

	done := make(chan error, 1)
	go func() { done <- cmd.Execute() }()

	go fmt.Fprintln(client, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":1,"clientCapabilities":{}}}`)
	scanner := bufio.NewScanner(replies)
	require.True(t, scanner.Scan())

	var resp struct {
		ID     int `json:"id"`
		Result struct {
			ProtocolVersion int `json:"protocolVersion"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
	assert.Equal(t, 1, resp.ID)
	assert.Equal(t, 1, resp.Result.ProtocolVersion)

	go io.Copy(io.Discard, replies)
	client.Close()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop at end of input")
	}
}

func TestChatWithMockBackend(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader("/exit\n"))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"chat", "--backend", "mock", "--log-dir", t.TempDir(), "hello", "there"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "You said: 'hello there'.")
}

func TestRejectsUnknownBackend(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetIn(strings.NewReader(""))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--backend", "nope"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestChatRejectsBadVerbosity(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"chat", "--backend", "mock", "--tool-verbosity", "loud"})
	assert.Error(t, cmd.Execute())
}
