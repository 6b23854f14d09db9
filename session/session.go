package session

import (
	"context"
	"sync"

	"github.com/coder/acp-go-sdk"
	"github.com/m4xw311/acpbridge/logging"
	"github.com/m4xw311/acpbridge/tools"
	"github.com/m4xw311/acpbridge/upstream"
)

// Outcome is how a prompt ended.
type Outcome struct {
	StopReason acp.StopReason
	Err        error
}

// Resolution completes one prompt request. The first Resolve wins; later
// calls are ignored, so cancellation is just another way to fulfil it.
type Resolution struct {
	once sync.Once
	ch   chan Outcome
}

func NewResolution() *Resolution {
	return &Resolution{ch: make(chan Outcome, 1)}
}

// Resolve fulfils the resolution and reports whether this call did so.
func (r *Resolution) Resolve(o Outcome) bool {
	done := false
	r.once.Do(func() {
		r.ch <- o
		done = true
	})
	return done
}

// Done delivers the outcome exactly once.
func (r *Resolution) Done() <-chan Outcome {
	return r.ch
}

// Session is the live state of one client conversation.
type Session struct {
	ID         string
	Cwd        string
	MCPServers []upstream.MCPServer

	// UpstreamSessionID is set by the first system/init event and never
	// changes afterwards.
	UpstreamSessionID string

	// Turn counts prompts; events from a superseded turn are ignored.
	Turn uint64
	// Abort cancels the latest query, which may still be draining after
	// its prompt resolved.
	Abort context.CancelFunc
	// Query is the latest upstream query.
	Query upstream.Query
	// Resolution is the outstanding prompt, if any.
	Resolution *Resolution

	Tools *tools.Tracker
	// Cancelled drops every remaining event of the current turn.
	Cancelled bool
	// Deferred holds the stop reason of a result that arrived while tools
	// were still pending.
	Deferred acp.StopReason

	Log *logging.SessionLog
}

func newSession(id, cwd string) *Session {
	return &Session{ID: id, Cwd: cwd, Tools: tools.NewTracker()}
}

// Resolve fulfils and clears the outstanding resolution. It reports false
// when there was none.
func (s *Session) Resolve(o Outcome) bool {
	if s.Resolution == nil {
		return false
	}
	r := s.Resolution
	s.Resolution = nil
	s.Deferred = ""
	return r.Resolve(o)
}
