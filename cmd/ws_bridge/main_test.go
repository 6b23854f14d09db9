package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m4xw311/acpbridge/config"
	"github.com/m4xw311/acpbridge/upstream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineWriterSplitsMessages(t *testing.T) {
	var got []string
	w := &lineWriter{send: func(line []byte) error {
		got = append(got, string(line))
		return nil
	}}
	_, err := w.Write([]byte("{\"a\":1}\n{\"b\""))
	require.NoError(t, err)
	_, err = w.Write([]byte(":2}\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, got)
}

func TestServesACPPerConnection(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = config.BackendMock
	cfg.LogDir = t.TempDir()
	up, err := upstream.New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	srv := httptest.NewServer(handleWS(context.Background(), cfg, up, zerolog.Nop()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":7,"method":"session/new","params":{"cwd":"/w","mcpServers":[]}}`)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var resp struct {
		ID     int `json:"id"`
		Result struct {
			SessionID string `json:"sessionId"`
		} `json:"result"`
	}
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, 7, resp.ID)
	assert.NotEmpty(t, resp.Result.SessionID)
}
