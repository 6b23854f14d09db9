package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/m4xw311/acpbridge/errors"
	"github.com/rs/zerolog"
)

// record kinds written to a session log
const (
	RecordSessionInit     = "session_init"
	RecordUpstreamSession = "upstream_session"
	RecordTurnStart       = "turn_start"
	RecordTurnEnd         = "turn_end"
)

type record struct {
	kind   string
	fields map[string]any
}

// SessionLog is the append-only audit log of one session. Records are
// handed to a single writer goroutine over a channel, so they land in the
// file in the order they were sent. A nil *SessionLog discards everything.
type SessionLog struct {
	mu      sync.Mutex
	closed  bool
	records chan record
	done    chan struct{}
	out     io.WriteCloser
}

// OpenSessionLog creates dir if needed and opens <dir>/<sessionID>.jsonl for appending.
func OpenSessionLog(dir, sessionID string) (*SessionLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "could not create session log directory")
	}
	path := filepath.Join(dir, sessionID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open session log %s", path)
	}
	return NewSessionLog(f), nil
}

// NewSessionLog starts a writer over out. out is closed by Close.
func NewSessionLog(out io.WriteCloser) *SessionLog {
	l := &SessionLog{
		records: make(chan record, 64),
		done:    make(chan struct{}),
		out:     out,
	}
	go l.run()
	return l
}

func (l *SessionLog) run() {
	defer close(l.done)
	w := zerolog.New(l.out).With().Timestamp().Logger()
	for r := range l.records {
		w.Log().Str("record", r.kind).Fields(r.fields).Send()
	}
}

func (l *SessionLog) send(kind string, fields map[string]any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.records <- record{kind: kind, fields: fields}
}

// Init writes the session header.
func (l *SessionLog) Init(sessionID, cwd string) {
	l.send(RecordSessionInit, map[string]any{"session_id": sessionID, "cwd": cwd})
}

// UpstreamSession records the upstream session id once it is known.
func (l *SessionLog) UpstreamSession(upstreamID string) {
	l.send(RecordUpstreamSession, map[string]any{"upstream_session_id": upstreamID})
}

func (l *SessionLog) TurnStart(parts int) {
	l.send(RecordTurnStart, map[string]any{"parts": parts})
}

func (l *SessionLog) TurnEnd(stopReason string, err error) {
	fields := map[string]any{"stop_reason": stopReason}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.send(RecordTurnEnd, fields)
}

// Close drains pending records and closes the underlying file.
func (l *SessionLog) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.records)
	l.mu.Unlock()
	<-l.done
	return l.out.Close()
}
