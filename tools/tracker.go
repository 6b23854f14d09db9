package tools

import (
	"encoding/json"

	"github.com/coder/acp-go-sdk"
	"github.com/m4xw311/acpbridge/errors"
)

// Use is a tool invocation that has started but not yet returned.
type Use struct {
	CallID  string
	Name    string
	Input   json.RawMessage
	Preview []acp.ToolCallContent
}

// Outcome is a finished invocation waiting to be reported.
type Outcome struct {
	CallID    string
	Name      string
	Text      string
	IsError   bool
	Preview   []acp.ToolCallContent
	RawOutput json.RawMessage
}

// Tracker holds one session's pending invocations and the FIFO of finished
// ones. It is not safe for concurrent use; the owner serializes access.
type Tracker struct {
	pending map[string]*Use
	queue   []Outcome
}

func NewTracker() *Tracker {
	return &Tracker{pending: make(map[string]*Use)}
}

// Start registers a pending invocation and returns the tool_call to send.
// The client call id is the upstream invocation id.
func (t *Tracker) Start(id, name string, input json.RawMessage) acp.SessionUpdate {
	use := &Use{CallID: id, Name: name, Input: input, Preview: Preview(name, input)}
	t.pending[id] = use
	opts := []acp.ToolCallStartOpt{
		acp.WithStartKind(Kind(name)),
		acp.WithStartStatus(acp.ToolCallStatusPending),
	}
	if len(input) > 0 {
		opts = append(opts, acp.WithStartRawInput(input))
	}
	if locs := Locations(input); len(locs) > 0 {
		opts = append(opts, acp.WithStartLocations(locs))
	}
	update := acp.StartToolCall(acp.ToolCallId(use.CallID), Title(name, input), opts...)
	update.ToolCall.Content = use.Preview
	return update
}

// Complete moves a pending invocation to the outcome queue. Nothing is sent
// until Flush. An id that is not pending yields ErrUnknownToolResult.
func (t *Tracker) Complete(id, text string, isError bool, raw json.RawMessage) error {
	use, ok := t.pending[id]
	if !ok {
		return errors.Wrapf(errors.ErrUnknownToolResult, "tool_use_id %s", id)
	}
	delete(t.pending, id)
	t.queue = append(t.queue, Outcome{
		CallID:    use.CallID,
		Name:      use.Name,
		Text:      text,
		IsError:   isError,
		Preview:   use.Preview,
		RawOutput: raw,
	})
	return nil
}

// Flush drains the outcome queue in completion order, one tool_call_update
// per outcome.
func (t *Tracker) Flush() []acp.SessionUpdate {
	if len(t.queue) == 0 {
		return nil
	}
	updates := make([]acp.SessionUpdate, 0, len(t.queue))
	for _, o := range t.queue {
		updates = append(updates, acp.UpdateToolCall(acp.ToolCallId(o.CallID), o.updateOpts()...))
	}
	t.queue = nil
	return updates
}

func (o Outcome) updateOpts() []acp.ToolCallUpdateOpt {
	status := acp.ToolCallStatusCompleted
	if o.IsError {
		status = acp.ToolCallStatusFailed
	}
	text := acp.ToolContent(acp.TextBlock(o.Text))
	if len(o.Preview) == 0 {
		return []acp.ToolCallUpdateOpt{
			acp.WithUpdateStatus(status),
			acp.WithUpdateContent([]acp.ToolCallContent{text}),
		}
	}

	// previewed tools keep their diffs and gain the result text
	var raw any = o.Text
	if len(o.RawOutput) > 0 {
		raw = o.RawOutput
	}
	return []acp.ToolCallUpdateOpt{
		acp.WithUpdateStatus(status),
		acp.WithUpdateTitle(completionTitle(o.Name)),
		acp.WithUpdateContent(append(append([]acp.ToolCallContent{}, o.Preview...), text)),
		acp.WithUpdateRawOutput(raw),
	}
}

// Reset forgets every pending and queued invocation.
func (t *Tracker) Reset() {
	t.pending = make(map[string]*Use)
	t.queue = nil
}

func (t *Tracker) Pending() int { return len(t.pending) }
func (t *Tracker) Queued() int  { return len(t.queue) }

