package agent

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/coder/acp-go-sdk"
	"github.com/google/uuid"
	"github.com/m4xw311/acpbridge/config"
	"github.com/m4xw311/acpbridge/content"
	"github.com/m4xw311/acpbridge/errors"
	"github.com/m4xw311/acpbridge/logging"
	"github.com/m4xw311/acpbridge/session"
	"github.com/m4xw311/acpbridge/tools"
	"github.com/m4xw311/acpbridge/upstream"
	"github.com/rs/zerolog"
)

// Client is the editor side of the bridge.
type Client interface {
	SessionUpdate(ctx context.Context, n acp.SessionNotification) error
	ReadTextFile(ctx context.Context, req acp.ReadTextFileRequest) (acp.ReadTextFileResponse, error)
}

// Agent runs prompt turns against an upstream and reports them to a client.
// One mutex guards the session store and every session's state; updates are
// sent while it is held so the client sees them in state order.
type Agent struct {
	mu        sync.Mutex
	store     *session.Store
	upstream  upstream.Upstream
	client    Client
	converter *content.Converter
	logDir    string
	log       zerolog.Logger

	loops sync.WaitGroup
}

// New builds an agent. Session audit logs are written under cfg.LogDir;
// an empty LogDir disables them.
func New(cfg *config.Config, up upstream.Upstream, client Client, log zerolog.Logger) *Agent {
	return &Agent{
		store:     session.NewStore(),
		upstream:  up,
		client:    client,
		converter: content.NewConverter(client, cfg.FilesystemAccess, log),
		logDir:    cfg.LogDir,
		log:       log,
	}
}

// SetClientCapabilities records what the client said it supports during
// initialize.
func (a *Agent) SetClientCapabilities(caps acp.ClientCapabilities) {
	a.converter.SetCanReadFiles(caps.Fs.ReadTextFile)
}

// NewSession creates a session with a fresh id.
func (a *Agent) NewSession(ctx context.Context, cwd string, mcpServers []upstream.MCPServer) (string, error) {
	id := uuid.NewString()
	if err := a.createSession(id, cwd, mcpServers); err != nil {
		return "", err
	}
	return id, nil
}

// LoadSession registers id with empty state if it is not live yet. History
// is not replayed.
func (a *Agent) LoadSession(ctx context.Context, id, cwd string, mcpServers []upstream.MCPServer) error {
	a.mu.Lock()
	_, ok := a.store.Get(id)
	a.mu.Unlock()
	if ok {
		return nil
	}
	err := a.createSession(id, cwd, mcpServers)
	if errors.Is(err, errors.ErrSessionExists) {
		return nil
	}
	return err
}

func (a *Agent) createSession(id, cwd string, mcpServers []upstream.MCPServer) error {
	var sessLog *logging.SessionLog
	if a.logDir != "" {
		l, err := logging.OpenSessionLog(a.logDir, id)
		if err != nil {
			a.log.Warn().Err(err).Str("session_id", id).Msg("session audit log disabled")
		} else {
			sessLog = l
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	sess, err := a.store.Create(id, cwd)
	if err != nil {
		_ = sessLog.Close()
		return err
	}
	sess.MCPServers = mcpServers
	sess.Log = sessLog
	sess.Log.Init(id, cwd)
	a.log.Info().Str("session_id", id).Str("cwd", cwd).Msg("session created")
	return nil
}

// Prompt runs one turn and blocks until it resolves. A turn still in flight
// on the same session is cancelled first.
func (a *Agent) Prompt(ctx context.Context, sessionID string, parts []acp.ContentBlock) (acp.StopReason, error) {
	a.mu.Lock()
	sess, ok := a.store.Get(sessionID)
	if !ok {
		a.mu.Unlock()
		return "", errors.Wrapf(errors.ErrSessionNotFound, "session %s", sessionID)
	}
	switch {
	case sess.Resolution != nil:
		a.log.Info().Str("session_id", sessionID).Msg("new prompt supersedes the turn in flight")
		a.cancelLocked(sess)
	case sess.Abort != nil:
		// the last turn resolved but its stream is still draining
		sess.Abort()
	}
	sess.Turn++
	turn := sess.Turn
	sess.Cancelled = false
	sess.Deferred = ""
	sess.Tools.Reset()
	res := session.NewResolution()
	sess.Resolution = res
	turnCtx, abort := context.WithCancel(ctx)
	sess.Abort = abort
	req := upstream.QueryRequest{ResumeSessionID: sess.UpstreamSessionID, Cwd: sess.Cwd, MCPServers: sess.MCPServers}
	sess.Log.TurnStart(len(parts))
	a.mu.Unlock()

	req.Prompt = a.converter.ToUpstream(turnCtx, sessionID, req.Cwd, parts)
	a.start(turnCtx, abort, sess, turn, req)

	o := <-res.Done()
	if o.Err != nil {
		return "", o.Err
	}
	return o.StopReason, nil
}

// start opens the upstream query and hands it to an event loop, unless the
// turn was cancelled while the prompt was being converted.
func (a *Agent) start(ctx context.Context, abort context.CancelFunc, sess *session.Session, turn uint64, req upstream.QueryRequest) {
	a.mu.Lock()
	live := a.isCurrent(sess, turn)
	a.mu.Unlock()
	if !live {
		abort()
		return
	}

	q, err := a.upstream.Query(ctx, req)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		if a.isCurrent(sess, turn) {
			a.log.Error().Err(err).Str("session_id", sess.ID).Msg("upstream query failed to start")
			a.finishLocked(sess, session.Outcome{Err: errors.Wrapf(errors.ErrUpstreamQuery, "%v", err)})
		}
		abort()
		return
	}
	if !a.isCurrent(sess, turn) {
		abort()
		go q.Close()
		return
	}
	sess.Query = q
	a.loops.Add(1)
	go a.run(ctx, abort, sess, turn, q)
}

// isCurrent reports whether events of turn may still affect the session.
func (a *Agent) isCurrent(sess *session.Session, turn uint64) bool {
	return sess.Turn == turn && !sess.Cancelled && sess.Resolution != nil
}

// run consumes one query in arrival order.
func (a *Agent) run(ctx context.Context, abort context.CancelFunc, sess *session.Session, turn uint64, q upstream.Query) {
	defer a.loops.Done()
	defer abort()
	defer func() {
		if err := q.Close(); err != nil {
			a.log.Warn().Err(err).Str("session_id", sess.ID).Msg("could not close upstream query")
		}
	}()

	for {
		ev, err := q.Next(ctx)
		a.mu.Lock()
		if !a.isCurrent(sess, turn) {
			a.mu.Unlock()
			if err != nil {
				return
			}
			continue
		}
		if err != nil {
			a.streamEndedLocked(ctx, sess, err)
			a.mu.Unlock()
			return
		}
		a.handleLocked(sess, ev)
		a.mu.Unlock()
	}
}

func (a *Agent) streamEndedLocked(ctx context.Context, sess *session.Session, err error) {
	switch {
	case err == io.EOF:
		reason := sess.Deferred
		if reason == "" {
			reason = acp.StopReasonEndTurn
		}
		a.flushLocked(sess)
		a.finishLocked(sess, session.Outcome{StopReason: reason})
	case ctx.Err() != nil:
		a.finishLocked(sess, session.Outcome{StopReason: acp.StopReasonCancelled})
	default:
		a.log.Error().Err(err).Str("session_id", sess.ID).Msg("upstream stream failed")
		a.finishLocked(sess, session.Outcome{Err: errors.Wrapf(errors.ErrUpstreamQuery, "%v", err)})
	}
}

func (a *Agent) handleLocked(sess *session.Session, ev upstream.Event) {
	switch ev := ev.(type) {
	case upstream.SystemEvent:
		if ev.Subtype == "init" && a.store.Bind(sess.ID, ev.SessionID) {
			a.log.Debug().Str("session_id", sess.ID).Str("upstream_session_id", ev.SessionID).Msg("bound upstream session")
			sess.Log.UpstreamSession(ev.SessionID)
		}
	case upstream.AssistantEvent:
		a.blocksLocked(sess, ev.Message.Content)
	case upstream.UserEvent:
		a.blocksLocked(sess, ev.Message.Content)
	case upstream.ResultEvent:
		reason := stopReason(ev)
		if n := sess.Tools.Pending(); n > 0 {
			a.log.Debug().Str("session_id", sess.ID).Int("pending", n).Msg("result before trailing tool results")
			sess.Deferred = reason
			return
		}
		a.flushLocked(sess)
		a.finishLocked(sess, session.Outcome{StopReason: reason})
	default:
		a.log.Debug().Str("session_id", sess.ID).Str("type", ev.EventType()).Msg("ignoring upstream event")
	}
}

func (a *Agent) blocksLocked(sess *session.Session, blocks []upstream.Block) {
	for _, b := range blocks {
		if !sess.Cancelled && sess.Resolution != nil {
			a.blockLocked(sess, b)
		}
	}
}

func (a *Agent) blockLocked(sess *session.Session, b upstream.Block) {
	switch b := b.(type) {
	case upstream.ToolUseBlock:
		a.toolUseLocked(sess, b.ID, b.Name, b.Input)
	case upstream.ServerToolUseBlock:
		a.toolUseLocked(sess, b.ID, b.Name, b.Input)
	case upstream.ToolResultBlock:
		a.toolResultLocked(sess, b.ToolUseID, b.Text(), b.IsError, b.Content)
	case upstream.WebSearchToolResultBlock:
		a.toolResultLocked(sess, b.ToolUseID, b.Text(), b.Failed(), b.Content)
	default:
		update, ok := content.Chunk(b)
		if !ok {
			a.log.Debug().Str("session_id", sess.ID).Str("block", b.BlockType()).Msg("skipping content block")
			return
		}
		a.flushLocked(sess)
		a.notifyLocked(sess, update)
	}
}

func (a *Agent) toolUseLocked(sess *session.Session, id, name string, input json.RawMessage) {
	if name == tools.TodoWrite {
		entries, err := tools.Plan(input)
		if err != nil {
			a.log.Warn().Err(err).Str("session_id", sess.ID).Str("tool_use_id", id).Msg("bad todo list")
			return
		}
		a.notifyLocked(sess, acp.UpdatePlan(entries...))
		return
	}
	a.notifyLocked(sess, sess.Tools.Start(id, name, input))
}

func (a *Agent) toolResultLocked(sess *session.Session, id, text string, isError bool, raw json.RawMessage) {
	if err := sess.Tools.Complete(id, text, isError, raw); err != nil {
		a.log.Warn().Err(err).Str("session_id", sess.ID).Str("tool_use_id", id).Msg("dropping tool result")
		return
	}
	if sess.Deferred != "" && sess.Tools.Pending() == 0 {
		a.flushLocked(sess)
		a.finishLocked(sess, session.Outcome{StopReason: sess.Deferred})
	}
}

func (a *Agent) flushLocked(sess *session.Session) {
	for _, u := range sess.Tools.Flush() {
		a.notifyLocked(sess, u)
	}
}

func (a *Agent) notifyLocked(sess *session.Session, update acp.SessionUpdate) {
	n := acp.SessionNotification{SessionId: acp.SessionId(sess.ID), Update: update}
	if err := a.client.SessionUpdate(context.Background(), n); err != nil {
		a.log.Warn().Err(err).Str("session_id", sess.ID).Str("update", updateKind(update)).Msg("could not send session update")
	}
}

// updateKind names the sessionUpdate variant for logs.
func updateKind(u acp.SessionUpdate) string {
	switch {
	case u.AgentMessageChunk != nil:
		return "agent_message_chunk"
	case u.AgentThoughtChunk != nil:
		return "agent_thought_chunk"
	case u.ToolCall != nil:
		return "tool_call"
	case u.ToolCallUpdate != nil:
		return "tool_call_update"
	case u.Plan != nil:
		return "plan"
	}
	return "other"
}

// finishLocked resolves the outstanding prompt. The event loop keeps
// draining the query until it ends or the next prompt aborts it.
func (a *Agent) finishLocked(sess *session.Session, o session.Outcome) {
	if sess.Resolve(o) {
		sess.Log.TurnEnd(string(o.StopReason), o.Err)
	}
}

func stopReason(ev upstream.ResultEvent) acp.StopReason {
	switch {
	case ev.Subtype == upstream.ResultSuccess && !ev.IsError:
		return acp.StopReasonEndTurn
	case ev.Subtype == upstream.ResultErrorMaxTurns:
		return acp.StopReasonMaxTurnRequests
	default:
		return acp.StopReasonRefusal
	}
}

// Cancel stops the turn in flight, if any. The session stays usable.
func (a *Agent) Cancel(ctx context.Context, sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess, ok := a.store.Get(sessionID)
	if !ok {
		return errors.Wrapf(errors.ErrSessionNotFound, "session %s", sessionID)
	}
	a.cancelLocked(sess)
	return nil
}

func (a *Agent) cancelLocked(sess *session.Session) {
	sess.Cancelled = true
	if sess.Abort != nil {
		// the event loop closes the query once Next returns
		sess.Abort()
	}
	if sess.Resolution != nil {
		sess.Resolve(session.Outcome{StopReason: acp.StopReasonCancelled})
		sess.Log.TurnEnd(string(acp.StopReasonCancelled), nil)
	}
	sess.Abort = nil
	sess.Query = nil
	sess.Deferred = ""
	a.store.Unbind(sess.ID)
	sess.Tools.Reset()
}

// Close cancels every session, waits for their event loops and closes the
// audit logs.
func (a *Agent) Close() error {
	a.mu.Lock()
	var logs []*logging.SessionLog
	for _, id := range a.store.IDs() {
		sess, _ := a.store.Get(id)
		a.cancelLocked(sess)
		logs = append(logs, sess.Log)
		a.store.Delete(id)
	}
	a.mu.Unlock()

	a.loops.Wait()
	for _, l := range logs {
		if err := l.Close(); err != nil {
			a.log.Warn().Err(err).Msg("could not close session log")
		}
	}
	return nil
}
