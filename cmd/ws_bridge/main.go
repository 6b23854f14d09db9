// Command ws_bridge serves the Agent Client Protocol over WebSocket, one
// ACP server per connection. Each text message carries one JSON-RPC message.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/m4xw311/acpbridge/agent/acp"
	"github.com/m4xw311/acpbridge/config"
	"github.com/m4xw311/acpbridge/errors"
	"github.com/m4xw311/acpbridge/logging"
	"github.com/m4xw311/acpbridge/upstream"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var addr, backend string

	cmd := &cobra.Command{
		Use:          "ws_bridge",
		Short:        "Serve the Agent Client Protocol over WebSocket at /ws",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return errors.Wrapf(err, "error loading configuration")
			}
			if backend != "" {
				cfg.Backend = backend
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log := logging.New(logging.Config{Level: logging.ParseLevel(cfg.LogLevel), Output: cmd.ErrOrStderr()})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			up, err := upstream.New(ctx, cfg, log)
			if err != nil {
				return errors.Wrapf(err, "could not initialize %s backend", cfg.Backend)
			}

			mux := http.NewServeMux()
			mux.HandleFunc("/ws", handleWS(ctx, cfg, up, log))
			srv := &http.Server{Addr: addr, Handler: mux}
			go func() {
				<-ctx.Done()
				_ = srv.Close()
			}()

			log.Info().Str("addr", addr).Msg("WebSocket server running on /ws")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "Address to listen on")
	cmd.Flags().StringVar(&backend, "backend", "", "Upstream backend (claude-code|anthropic|bedrock|openai|gemini|mock)")
	return cmd
}

func handleWS(ctx context.Context, cfg *config.Config, up upstream.Upstream, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("upgrade error")
			return
		}
		defer conn.Close()

		connLog := log.With().Str("remote", r.RemoteAddr).Logger()
		in, feed := io.Pipe()

		// WebSocket messages → server input
		go func() {
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					connLog.Debug().Err(err).Msg("websocket read ended")
					feed.Close()
					return
				}
				if _, err := feed.Write(append(msg, '\n')); err != nil {
					return
				}
			}
		}()

		out := &lineWriter{send: func(line []byte) error {
			return conn.WriteMessage(websocket.TextMessage, line)
		}}
		if err := acp.Run(ctx, cfg, up, in, out, connLog); err != nil {
			connLog.Error().Err(err).Msg("ACP server stopped")
		}
		in.Close()
	}
}

// lineWriter sends every complete line written to it as one message.
type lineWriter struct {
	mu   sync.Mutex
	buf  []byte
	send func([]byte) error
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			return len(p), nil
		}
		if err := w.send(w.buf[:i]); err != nil {
			return 0, err
		}
		w.buf = w.buf[i+1:]
	}
}
