package upstream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m4xw311/acpbridge/errors"
)

// Block type tags.
const (
	BlockText                = "text"
	BlockThinking            = "thinking"
	BlockRedactedThinking    = "redacted_thinking"
	BlockToolUse             = "tool_use"
	BlockServerToolUse       = "server_tool_use"
	BlockToolResult          = "tool_result"
	BlockWebSearchToolResult = "web_search_tool_result"
	BlockImage               = "image"
	BlockDocument            = "document"
	BlockSearchResult        = "search_result"
)

// Block is one content block of an upstream message. The concrete types are
// TextBlock, ThinkingBlock, RedactedThinkingBlock, ToolUseBlock,
// ServerToolUseBlock, ToolResultBlock, WebSearchToolResultBlock, ImageBlock,
// DocumentBlock, SearchResultBlock and UnknownBlock.
type Block interface {
	BlockType() string
}

type TextBlock struct {
	Text string
}

type ThinkingBlock struct {
	Thinking  string
	Signature string
}

type RedactedThinkingBlock struct {
	Data string
}

type ToolUseBlock struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ServerToolUseBlock is a tool executed by the model provider itself, such
// as web search.
type ServerToolUseBlock struct {
	ID    string
	Name  string
	Input json.RawMessage
}

type ToolResultBlock struct {
	ToolUseID string
	// Content is either a JSON string or an array of content blocks.
	Content json.RawMessage
	IsError bool
}

type WebSearchToolResultBlock struct {
	ToolUseID string
	Content   json.RawMessage
}

// Source types for images and documents.
const (
	SourceBase64 = "base64"
	SourceURL    = "url"
	SourceText   = "text"
)

type Source struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type ImageBlock struct {
	Source Source
}

type DocumentBlock struct {
	Source Source
	Title  string
}

type SearchResultBlock struct {
	Source  string
	Title   string
	Content []TextBlock
}

type UnknownBlock struct {
	Type string
	Raw  json.RawMessage
}

func (TextBlock) BlockType() string                { return BlockText }
func (ThinkingBlock) BlockType() string            { return BlockThinking }
func (RedactedThinkingBlock) BlockType() string    { return BlockRedactedThinking }
func (ToolUseBlock) BlockType() string             { return BlockToolUse }
func (ServerToolUseBlock) BlockType() string       { return BlockServerToolUse }
func (ToolResultBlock) BlockType() string          { return BlockToolResult }
func (WebSearchToolResultBlock) BlockType() string { return BlockWebSearchToolResult }
func (ImageBlock) BlockType() string               { return BlockImage }
func (DocumentBlock) BlockType() string            { return BlockDocument }
func (SearchResultBlock) BlockType() string        { return BlockSearchResult }
func (b UnknownBlock) BlockType() string           { return b.Type }

type wireBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Signature string          `json:"signature,omitempty"`
	Data      string          `json:"data,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Source    json.RawMessage `json:"source,omitempty"`
	Title     string          `json:"title,omitempty"`
}

// ParseBlock decodes a single content block. Unrecognized types become an
// UnknownBlock rather than an error.
func ParseBlock(raw json.RawMessage) (Block, error) {
	var w wireBlock
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errors.Wrapf(err, "invalid content block")
	}
	switch w.Type {
	case BlockText:
		return TextBlock{Text: w.Text}, nil
	case BlockThinking:
		return ThinkingBlock{Thinking: w.Thinking, Signature: w.Signature}, nil
	case BlockRedactedThinking:
		return RedactedThinkingBlock{Data: w.Data}, nil
	case BlockToolUse:
		return ToolUseBlock{ID: w.ID, Name: w.Name, Input: w.Input}, nil
	case BlockServerToolUse:
		return ServerToolUseBlock{ID: w.ID, Name: w.Name, Input: w.Input}, nil
	case BlockToolResult:
		return ToolResultBlock{ToolUseID: w.ToolUseID, Content: w.Content, IsError: w.IsError}, nil
	case BlockWebSearchToolResult:
		return WebSearchToolResultBlock{ToolUseID: w.ToolUseID, Content: w.Content}, nil
	case BlockImage, BlockDocument:
		var src Source
		if len(w.Source) > 0 {
			if err := json.Unmarshal(w.Source, &src); err != nil {
				return nil, errors.Wrapf(err, "invalid %s source", w.Type)
			}
		}
		if w.Type == BlockImage {
			return ImageBlock{Source: src}, nil
		}
		return DocumentBlock{Source: src, Title: w.Title}, nil
	case BlockSearchResult:
		b := SearchResultBlock{Title: w.Title}
		_ = json.Unmarshal(w.Source, &b.Source)
		var parts []wireBlock
		_ = json.Unmarshal(w.Content, &parts)
		for _, p := range parts {
			b.Content = append(b.Content, TextBlock{Text: p.Text})
		}
		return b, nil
	default:
		return UnknownBlock{Type: w.Type, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

func (b TextBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireBlock{Type: BlockText, Text: b.Text})
}

func (b ImageBlock) MarshalJSON() ([]byte, error) {
	return marshalSourced(BlockImage, b.Source, "")
}

func (b DocumentBlock) MarshalJSON() ([]byte, error) {
	return marshalSourced(BlockDocument, b.Source, b.Title)
}

func (b ToolResultBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireBlock{Type: BlockToolResult, ToolUseID: b.ToolUseID, Content: b.Content, IsError: b.IsError})
}

func (b ToolUseBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireBlock{Type: BlockToolUse, ID: b.ID, Name: b.Name, Input: b.Input})
}

func (b ThinkingBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireBlock{Type: BlockThinking, Thinking: b.Thinking, Signature: b.Signature})
}

func (b RedactedThinkingBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireBlock{Type: BlockRedactedThinking, Data: b.Data})
}

func (b ServerToolUseBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireBlock{Type: BlockServerToolUse, ID: b.ID, Name: b.Name, Input: b.Input})
}

func (b WebSearchToolResultBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireBlock{Type: BlockWebSearchToolResult, ToolUseID: b.ToolUseID, Content: b.Content})
}

func (b SearchResultBlock) MarshalJSON() ([]byte, error) {
	parts := make([]wireBlock, 0, len(b.Content))
	for _, p := range b.Content {
		parts = append(parts, wireBlock{Type: BlockText, Text: p.Text})
	}
	src, _ := json.Marshal(b.Source)
	content, err := json.Marshal(parts)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireBlock{Type: BlockSearchResult, Source: src, Title: b.Title, Content: content})
}

func (b UnknownBlock) MarshalJSON() ([]byte, error) {
	if len(b.Raw) > 0 {
		return b.Raw, nil
	}
	return json.Marshal(wireBlock{Type: b.Type})
}

func marshalSourced(kind string, src Source, title string) ([]byte, error) {
	s, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireBlock{Type: kind, Source: s, Title: title})
}

// Text flattens a tool result's content to plain text. Non-text parts are
// rendered as a short placeholder.
func (b ToolResultBlock) Text() string {
	trimmed := strings.TrimSpace(string(b.Content))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(b.Content, &s); err == nil {
			return s
		}
	}
	var parts []wireBlock
	if err := json.Unmarshal(b.Content, &parts); err != nil {
		return trimmed
	}
	var out []string
	for _, p := range parts {
		switch p.Type {
		case BlockText:
			out = append(out, p.Text)
		default:
			out = append(out, fmt.Sprintf("[%s]", p.Type))
		}
	}
	return strings.Join(out, "\n")
}

// Failed reports whether the search returned an error object instead of hits.
func (b WebSearchToolResultBlock) Failed() bool {
	var failure struct {
		ErrorCode string `json:"error_code"`
	}
	return json.Unmarshal(b.Content, &failure) == nil && failure.ErrorCode != ""
}

// Text renders web search hits one per line, or the error code when the
// search failed.
func (b WebSearchToolResultBlock) Text() string {
	var hits []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal(b.Content, &hits); err == nil {
		lines := make([]string, 0, len(hits))
		for _, h := range hits {
			lines = append(lines, fmt.Sprintf("%s (%s)", h.Title, h.URL))
		}
		return strings.Join(lines, "\n")
	}
	var failure struct {
		ErrorCode string `json:"error_code"`
	}
	if err := json.Unmarshal(b.Content, &failure); err == nil && failure.ErrorCode != "" {
		return "web search failed: " + failure.ErrorCode
	}
	return string(b.Content)
}
