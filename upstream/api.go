package upstream

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// completer performs one model call over the full history. The returned
// stop reason is provider-specific and only logged.
type completer interface {
	complete(ctx context.Context, system string, history []Message) (Message, string, error)
}

// apiUpstream adapts a completer to the Upstream event stream. It keeps the
// conversation of every upstream session it has started so a resumed query
// sees earlier turns.
type apiUpstream struct {
	c      completer
	model  string
	system string
	log    zerolog.Logger

	mu        sync.Mutex
	histories map[string][]Message
}

func newAPIUpstream(c completer, model, system string, log zerolog.Logger) *apiUpstream {
	return &apiUpstream{
		c:         c,
		model:     model,
		system:    system,
		log:       log,
		histories: make(map[string][]Message),
	}
}

func (u *apiUpstream) Query(ctx context.Context, req QueryRequest) (Query, error) {
	u.mu.Lock()
	id := req.ResumeSessionID
	history, ok := u.histories[id]
	if id == "" || !ok {
		if id != "" {
			u.log.Warn().Str("upstream_session_id", id).Msg("unknown upstream session, starting a new one")
		}
		id = uuid.NewString()
		history = nil
	}
	turn := make([]Message, len(history), len(history)+1)
	copy(turn, history)
	u.mu.Unlock()

	turn = append(turn, Message{Role: "user", Content: req.Prompt})
	ctx, cancel := context.WithCancel(ctx)
	return &apiQuery{u: u, ctx: ctx, cancel: cancel, sessionID: id, history: turn}, nil
}

func (u *apiUpstream) commit(id string, history []Message) {
	u.mu.Lock()
	u.histories[id] = history
	u.mu.Unlock()
}

// apiQuery yields system/init, one assistant message and a result.
type apiQuery struct {
	u         *apiUpstream
	ctx       context.Context
	cancel    context.CancelFunc
	sessionID string
	history   []Message
	step      int
	reply     Message
}

func (q *apiQuery) Next(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer func() { q.step++ }()
	switch q.step {
	case 0:
		return SystemEvent{Subtype: "init", SessionID: q.sessionID, Model: q.u.model}, nil
	case 1:
		reply, stop, err := q.u.c.complete(q.ctx, q.u.system, q.history)
		if err != nil {
			q.step = 2
			return nil, err
		}
		q.u.log.Debug().Str("stop_reason", stop).Int("blocks", len(reply.Content)).Msg("completion done")
		reply.Role = "assistant"
		q.reply = reply
		q.u.commit(q.sessionID, append(q.history, reply))
		return AssistantEvent{SessionID: q.sessionID, Message: reply}, nil
	case 2:
		return ResultEvent{Subtype: ResultSuccess, Result: plainText(q.reply.Content), SessionID: q.sessionID, NumTurns: 1}, nil
	default:
		return nil, io.EOF
	}
}

func (q *apiQuery) Close() error {
	q.cancel()
	return nil
}

// plainText flattens blocks for providers that only take strings.
func plainText(blocks []Block) string {
	var parts []string
	for _, b := range blocks {
		switch b := b.(type) {
		case TextBlock:
			parts = append(parts, b.Text)
		case DocumentBlock:
			if b.Source.Type == SourceText {
				parts = append(parts, b.Source.Data)
			} else {
				parts = append(parts, fmt.Sprintf("[document: %s]", b.Source.MediaType))
			}
		case ImageBlock:
			parts = append(parts, fmt.Sprintf("[image: %s]", b.Source.MediaType))
		}
	}
	return strings.Join(parts, "\n")
}

// echoCompleter parrots the last user message back. It backs the mock
// backend used for local testing without credentials.
type echoCompleter struct{}

func (echoCompleter) complete(ctx context.Context, system string, history []Message) (Message, string, error) {
	last := history[len(history)-1]
	text := fmt.Sprintf("I am a mock model. You said: '%s'.", plainText(last.Content))
	return Message{Role: "assistant", Content: []Block{TextBlock{Text: text}}}, "end_turn", nil
}
