package upstream

import (
	"context"
	"encoding/json"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m4xw311/acpbridge/errors"
)

type anthropicCompleter struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// newAnthropicCompleter requires the ANTHROPIC_API_KEY environment variable.
func newAnthropicCompleter(model string, maxTokens int64) (*anthropicCompleter, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	if model == "" {
		model = "claude-sonnet-4-0"
	}
	return &anthropicCompleter{client: &client, model: model, maxTokens: maxTokens}, nil
}

func (a *anthropicCompleter) complete(ctx context.Context, system string, history []Message) (Message, string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages:  toAnthropicMessages(history),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return Message{}, "", errors.Wrapf(err, "failed to send message to Anthropic")
	}
	blocks, err := fromAnthropicContent(resp.Content)
	if err != nil {
		return Message{}, "", err
	}
	return Message{Role: "assistant", Model: string(resp.Model), Content: blocks}, string(resp.StopReason), nil
}

func toAnthropicMessages(history []Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, msg := range history {
		var blocks []anthropic.ContentBlockParamUnion
		for _, b := range msg.Content {
			switch b := b.(type) {
			case TextBlock:
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case ImageBlock:
				if b.Source.Type == SourceURL {
					blocks = append(blocks, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: b.Source.URL}))
				} else {
					blocks = append(blocks, anthropic.NewImageBlockBase64(b.Source.MediaType, b.Source.Data))
				}
			case DocumentBlock:
				if b.Source.Type == SourceText {
					blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.PlainTextSourceParam{Data: b.Source.Data}))
				} else {
					blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: b.Source.Data}))
				}
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if msg.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func fromAnthropicContent(content []anthropic.ContentBlockUnion) ([]Block, error) {
	var blocks []Block
	for _, c := range content {
		switch v := c.AsAny().(type) {
		case anthropic.TextBlock:
			blocks = append(blocks, TextBlock{Text: v.Text})
		case anthropic.ThinkingBlock:
			blocks = append(blocks, ThinkingBlock{Thinking: v.Thinking, Signature: v.Signature})
		case anthropic.RedactedThinkingBlock:
			blocks = append(blocks, RedactedThinkingBlock{Data: v.Data})
		case anthropic.ToolUseBlock:
			blocks = append(blocks, ToolUseBlock{ID: v.ID, Name: v.Name, Input: v.Input})
		default:
			b, err := ParseBlock(json.RawMessage(c.RawJSON()))
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, b)
		}
	}
	return blocks, nil
}
