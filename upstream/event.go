package upstream

import (
	"encoding/json"
	"strings"

	"github.com/m4xw311/acpbridge/errors"
)

// Event types emitted on the upstream stream.
const (
	EventSystem    = "system"
	EventAssistant = "assistant"
	EventUser      = "user"
	EventResult    = "result"
)

// Result subtypes.
const (
	ResultSuccess              = "success"
	ResultErrorMaxTurns        = "error_max_turns"
	ResultErrorDuringExecution = "error_during_execution"
)

// Event is one of SystemEvent, AssistantEvent, UserEvent, ResultEvent or
// UnknownEvent.
type Event interface {
	EventType() string
}

// SystemEvent announces the upstream session. Subtype "init" carries the
// upstream session id.
type SystemEvent struct {
	Subtype   string
	SessionID string
	Model     string
	Cwd       string
	Tools     []string
}

type AssistantEvent struct {
	SessionID       string
	ParentToolUseID string
	Message         Message
}

// UserEvent echoes user-role content, which includes tool results.
type UserEvent struct {
	SessionID       string
	ParentToolUseID string
	Message         Message
}

// ResultEvent ends a query.
type ResultEvent struct {
	Subtype      string
	IsError      bool
	Result       string
	SessionID    string
	NumTurns     int
	DurationMS   int64
	TotalCostUSD float64
}

// UnknownEvent is any event type the bridge does not interpret.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (SystemEvent) EventType() string    { return EventSystem }
func (AssistantEvent) EventType() string { return EventAssistant }
func (UserEvent) EventType() string      { return EventUser }
func (ResultEvent) EventType() string    { return EventResult }
func (e UnknownEvent) EventType() string { return e.Type }

type wireEvent struct {
	Type            string   `json:"type"`
	Subtype         string   `json:"subtype"`
	SessionID       string   `json:"session_id"`
	Model           string   `json:"model"`
	Cwd             string   `json:"cwd"`
	Tools           []string `json:"tools"`
	Message         *Message `json:"message"`
	ParentToolUseID *string  `json:"parent_tool_use_id"`
	IsError         bool     `json:"is_error"`
	Result          string   `json:"result"`
	NumTurns        int      `json:"num_turns"`
	DurationMS      int64    `json:"duration_ms"`
	TotalCostUSD    float64  `json:"total_cost_usd"`
}

// ParseEvent decodes one line of the stream-json output.
func ParseEvent(line []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, errors.Wrapf(err, "invalid upstream event")
	}
	parent := ""
	if w.ParentToolUseID != nil {
		parent = *w.ParentToolUseID
	}
	switch w.Type {
	case EventSystem:
		return SystemEvent{Subtype: w.Subtype, SessionID: w.SessionID, Model: w.Model, Cwd: w.Cwd, Tools: w.Tools}, nil
	case EventAssistant, EventUser:
		if w.Message == nil {
			return nil, errors.New("%s event without message", w.Type)
		}
		if w.Type == EventAssistant {
			return AssistantEvent{SessionID: w.SessionID, ParentToolUseID: parent, Message: *w.Message}, nil
		}
		return UserEvent{SessionID: w.SessionID, ParentToolUseID: parent, Message: *w.Message}, nil
	case EventResult:
		return ResultEvent{
			Subtype:      w.Subtype,
			IsError:      w.IsError,
			Result:       w.Result,
			SessionID:    w.SessionID,
			NumTurns:     w.NumTurns,
			DurationMS:   w.DurationMS,
			TotalCostUSD: w.TotalCostUSD,
		}, nil
	default:
		return UnknownEvent{Type: w.Type, Raw: append(json.RawMessage(nil), line...)}, nil
	}
}

// Message is a role plus content blocks. On the wire the content may also be
// a bare string, which decodes to a single TextBlock.
type Message struct {
	Role    string
	Model   string
	Content []Block
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w struct {
		Role    string          `json:"role"`
		Model   string          `json:"model"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Role, m.Model, m.Content = w.Role, w.Model, nil

	trimmed := strings.TrimSpace(string(w.Content))
	switch {
	case trimmed == "" || trimmed == "null":
		return nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(w.Content, &s); err != nil {
			return err
		}
		m.Content = []Block{TextBlock{Text: s}}
		return nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(w.Content, &raws); err != nil {
		return errors.Wrapf(err, "message content is neither string nor array")
	}
	for _, raw := range raws {
		b, err := ParseBlock(raw)
		if err != nil {
			return err
		}
		m.Content = append(m.Content, b)
	}
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	content := m.Content
	if content == nil {
		content = []Block{}
	}
	return json.Marshal(struct {
		Role    string  `json:"role"`
		Content []Block `json:"content"`
	}{m.Role, content})
}
