package upstream

import (
	"context"
	"encoding/base64"
	"os"

	"github.com/google/generative-ai-go/genai"
	"github.com/m4xw311/acpbridge/errors"
	"google.golang.org/api/option"
)

type geminiCompleter struct {
	client *genai.Client
	model  string
}

// newGeminiCompleter requires the GEMINI_API_KEY environment variable.
func newGeminiCompleter(ctx context.Context, model string) (*geminiCompleter, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}
	return &geminiCompleter{client: client, model: model}, nil
}

func (g *geminiCompleter) complete(ctx context.Context, system string, history []Message) (Message, string, error) {
	model := g.client.GenerativeModel(g.model)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	contents := toGeminiContents(history)
	last := contents[len(contents)-1]

	chat := model.StartChat()
	chat.History = contents[:len(contents)-1]
	resp, err := chat.SendMessage(ctx, last.Parts...)
	if err != nil {
		return Message{}, "", errors.Wrapf(err, "failed to send message to Gemini")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Message{}, "", errors.New("received an empty response from Gemini")
	}

	cand := resp.Candidates[0]
	msg := Message{Role: "assistant", Model: g.model}
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			msg.Content = append(msg.Content, TextBlock{Text: string(text)})
		}
	}
	return msg, cand.FinishReason.String(), nil
}

func toGeminiContents(history []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		var parts []genai.Part
		for _, b := range msg.Content {
			switch b := b.(type) {
			case TextBlock:
				parts = append(parts, genai.Text(b.Text))
			case ImageBlock:
				if b.Source.Type != SourceBase64 {
					parts = append(parts, genai.Text(b.Source.URL))
					continue
				}
				data, err := base64.StdEncoding.DecodeString(b.Source.Data)
				if err != nil {
					continue
				}
				parts = append(parts, genai.Blob{MIMEType: b.Source.MediaType, Data: data})
			case DocumentBlock:
				parts = append(parts, genai.Text(plainText([]Block{b})))
			}
		}
		if len(parts) == 0 {
			parts = []genai.Part{genai.Text("")}
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}
