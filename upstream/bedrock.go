package upstream

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/m4xw311/acpbridge/errors"
)

type bedrockCompleter struct {
	client    *bedrockruntime.Client
	modelID   string
	maxTokens int64
}

// newBedrockCompleter uses the default AWS credential chain.
func newBedrockCompleter(ctx context.Context, modelID string, maxTokens int64) (*bedrockCompleter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return &bedrockCompleter{
		client:    bedrockruntime.NewFromConfig(cfg),
		modelID:   modelID,
		maxTokens: maxTokens,
	}, nil
}

func (b *bedrockCompleter) complete(ctx context.Context, system string, history []Message) (Message, string, error) {
	body, err := bedrockRequest(system, history, b.maxTokens)
	if err != nil {
		return Message{}, "", errors.Wrapf(err, "failed to create Anthropic request")
	}
	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return Message{}, "", errors.Wrapf(err, "failed to invoke Bedrock model")
	}
	return bedrockResponse(resp.Body)
}

// bedrockRequest builds the Anthropic messages body Bedrock expects. Blocks
// serialize in the same shape the CLI reads from stdin.
func bedrockRequest(system string, history []Message, maxTokens int64) ([]byte, error) {
	messages := make([]Message, 0, len(history))
	for _, m := range history {
		var content []Block
		for _, b := range m.Content {
			switch b.(type) {
			case TextBlock, ImageBlock, DocumentBlock:
				content = append(content, b)
			}
		}
		if len(content) > 0 {
			messages = append(messages, Message{Role: m.Role, Content: content})
		}
	}
	request := map[string]any{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        maxTokens,
		"messages":          messages,
	}
	if system != "" {
		request["system"] = system
	}
	return json.Marshal(request)
}

func bedrockResponse(body []byte) (Message, string, error) {
	var response struct {
		Content    json.RawMessage `json:"content"`
		StopReason string          `json:"stop_reason"`
		Model      string          `json:"model"`
		Error      any             `json:"error"`
		Message    string          `json:"message"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return Message{}, "", errors.Wrapf(err, "failed to unmarshal Bedrock response")
	}
	if response.Error != nil {
		return Message{}, "", errors.New("Bedrock API error: %v", response.Error)
	}
	msg := Message{Role: "assistant", Model: response.Model}
	if len(response.Content) == 0 {
		return msg, response.StopReason, nil
	}
	// reuse the message decoder for the content array
	wrapped, _ := json.Marshal(map[string]json.RawMessage{"content": response.Content})
	if err := json.Unmarshal(wrapped, &msg); err != nil {
		return Message{}, "", errors.Wrapf(err, "unexpected content format in Bedrock response")
	}
	msg.Role, msg.Model = "assistant", response.Model
	return msg, response.StopReason, nil
}
