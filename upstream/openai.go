package upstream

import (
	"context"
	"os"

	"github.com/m4xw311/acpbridge/errors"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

type openAICompleter struct {
	client *openai.Client
	model  string
}

// newOpenAICompleter requires OPENAI_API_KEY and honours OPENAI_BASE_URL.
func newOpenAICompleter(model string) (*openAICompleter, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}
	options := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	c := openai.NewClient(options...)
	return &openAICompleter{client: &c, model: model}, nil
}

func (o *openAICompleter) complete(ctx context.Context, system string, history []Message) (Message, string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: toOpenAIMessages(system, history),
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Message{}, "", errors.Wrapf(err, "failed to send message to OpenAI")
	}
	if len(resp.Choices) == 0 {
		return Message{Role: "assistant"}, "", nil
	}
	choice := resp.Choices[0]
	msg := Message{Role: "assistant", Model: resp.Model}
	if choice.Message.Content != "" {
		msg.Content = []Block{TextBlock{Text: choice.Message.Content}}
	}
	return msg, choice.FinishReason, nil
}

func toOpenAIMessages(system string, history []Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, msg := range history {
		text := plainText(msg.Content)
		if msg.Role == "assistant" {
			out = append(out, openai.AssistantMessage(text))
		} else {
			out = append(out, openai.UserMessage(text))
		}
	}
	return out
}
