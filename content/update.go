package content

import (
	"fmt"
	"strings"

	"github.com/coder/acp-go-sdk"
	"github.com/m4xw311/acpbridge/upstream"
)

// RedactedThinking is shown in place of thinking the provider withheld.
const RedactedThinking = "[redacted thinking]"

// Chunk maps a displayable upstream block to a message or thought chunk.
// Tool blocks and unknown blocks report false; the caller routes them.
func Chunk(b upstream.Block) (acp.SessionUpdate, bool) {
	switch b := b.(type) {
	case upstream.TextBlock:
		return acp.UpdateAgentMessageText(b.Text), true
	case upstream.ThinkingBlock:
		return acp.UpdateAgentThoughtText(b.Thinking), true
	case upstream.RedactedThinkingBlock:
		return acp.UpdateAgentThoughtText(RedactedThinking), true
	case upstream.DocumentBlock, upstream.ImageBlock, upstream.SearchResultBlock:
		return acp.UpdateAgentMessageText(Display(b)), true
	}
	return acp.SessionUpdate{}, false
}

// Display renders documents, images and search results as text.
func Display(b upstream.Block) string {
	switch b := b.(type) {
	case upstream.TextBlock:
		return b.Text
	case upstream.DocumentBlock:
		var text string
		switch b.Source.Type {
		case upstream.SourceText:
			text = b.Source.Data
		case upstream.SourceURL:
			text = fmt.Sprintf("[document](%s)", b.Source.URL)
		default:
			text = fmt.Sprintf("[document: %s]", b.Source.MediaType)
		}
		if b.Title != "" {
			return b.Title + "\n" + text
		}
		return text
	case upstream.ImageBlock:
		if b.Source.Type == upstream.SourceURL {
			return fmt.Sprintf("![image](%s)", b.Source.URL)
		}
		return fmt.Sprintf("[image: %s]", b.Source.MediaType)
	case upstream.SearchResultBlock:
		lines := []string{fmt.Sprintf("%s (%s)", b.Title, b.Source)}
		for _, c := range b.Content {
			lines = append(lines, c.Text)
		}
		return strings.Join(lines, "\n")
	}
	return ""
}
