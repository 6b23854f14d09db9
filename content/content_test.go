package content

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/coder/acp-go-sdk"
	"github.com/m4xw311/acpbridge/config"
	"github.com/m4xw311/acpbridge/upstream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	files map[string]string
	calls []acp.ReadTextFileRequest
}

func (f *fakeReader) ReadTextFile(ctx context.Context, req acp.ReadTextFileRequest) (acp.ReadTextFileResponse, error) {
	f.calls = append(f.calls, req)
	text, ok := f.files[req.Path]
	if !ok {
		return acp.ReadTextFileResponse{}, fmt.Errorf("no such file %s", req.Path)
	}
	return acp.ReadTextFileResponse{Content: text}, nil
}

func newConverter(files map[string]string, canRead bool) (*Converter, *fakeReader) {
	r := &fakeReader{files: files}
	c := NewConverter(r, config.Default().FilesystemAccess, zerolog.Nop())
	c.SetCanReadFiles(canRead)
	return c, r
}

func TestToUpstreamMapsEveryPartInOrder(t *testing.T) {
	c, _ := newConverter(nil, false)
	parts := []acp.ContentBlock{
		acp.TextBlock("hello"),
		acp.ImageBlock("AAA", "image/png"),
		{Image: &acp.ContentBlockImage{Type: "image", MimeType: "image/png", Uri: acp.Ptr("https://x/y.png")}},
		{Image: &acp.ContentBlockImage{Type: "image", MimeType: "image/png"}},
		acp.ResourceBlock(acp.EmbeddedResourceResource{TextResourceContents: &acp.TextResourceContents{Uri: "file:///a.txt", Text: "body"}}),
		acp.ResourceBlock(acp.EmbeddedResourceResource{BlobResourceContents: &acp.BlobResourceContents{Uri: "file:///a.pdf", Blob: "UERG"}}),
		acp.ResourceBlock(acp.EmbeddedResourceResource{TextResourceContents: &acp.TextResourceContents{Uri: "file:///a.md", Text: "# A", MimeType: acp.Ptr("text/markdown")}}),
		{Audio: &acp.ContentBlockAudio{Type: "audio", Data: "zzz", MimeType: "audio/wav"}},
		{},
	}
	got := c.ToUpstream(context.Background(), "s", "/", parts)
	assert.Equal(t, []upstream.Block{
		upstream.TextBlock{Text: "hello"},
		upstream.ImageBlock{Source: upstream.Source{Type: upstream.SourceBase64, MediaType: "image/png", Data: "AAA"}},
		upstream.ImageBlock{Source: upstream.Source{Type: upstream.SourceURL, URL: "https://x/y.png"}},
		upstream.DocumentBlock{Source: upstream.Source{Type: upstream.SourceText, MediaType: "text/plain", Data: "body"}},
		upstream.DocumentBlock{Source: upstream.Source{Type: upstream.SourceBase64, MediaType: "application/pdf", Data: "UERG"}},
		upstream.DocumentBlock{Source: upstream.Source{Type: upstream.SourceText, MediaType: "text/markdown", Data: "# A"}},
	}, got)
}

func TestResourceLinkInlinedWhenClientCanRead(t *testing.T) {
	c, r := newConverter(map[string]string{"/w/main.go": "package main\n"}, true)
	got := c.ToUpstream(context.Background(), "s1", "/w", []acp.ContentBlock{
		acp.ResourceLinkBlock("main.go", "file:///w/main.go"),
	})
	require.Len(t, got, 1)
	assert.Equal(t, upstream.TextBlock{Text: "```file:///w/main.go\npackage main\n```"}, got[0])
	assert.Equal(t, []acp.ReadTextFileRequest{{SessionId: "s1", Path: "/w/main.go"}}, r.calls)
}

func TestResourceLinkTruncatesOnRuneBoundary(t *testing.T) {
	// a three-byte rune straddles the inline limit
	body := strings.Repeat("a", maxInlineSize-1) + "€" + "tail"
	c, _ := newConverter(map[string]string{"/w/big.txt": body}, true)
	got := c.ToUpstream(context.Background(), "s", "/w", []acp.ContentBlock{
		acp.ResourceLinkBlock("big.txt", "file:///w/big.txt"),
	})
	require.Len(t, got, 1)
	text := got[0].(upstream.TextBlock).Text
	assert.True(t, utf8.ValidString(text))
	assert.Contains(t, text, strings.Repeat("a", maxInlineSize-1)+"\n\n[... truncated to 50KB ...]")
	assert.NotContains(t, text, "tail")

	assert.Equal(t, "short", truncate("short"))
	exact := strings.Repeat("b", maxInlineSize)
	assert.Equal(t, exact, truncate(exact))
}

func TestResourceLinkFallsBack(t *testing.T) {
	link := acp.ResourceLinkBlock("x.go", "file:///w/x.go")
	want := []upstream.Block{upstream.TextBlock{Text: "[@x.go](file:///w/x.go)"}}

	t.Run("no capability", func(t *testing.T) {
		c, r := newConverter(map[string]string{"/w/x.go": "x"}, false)
		assert.Equal(t, want, c.ToUpstream(context.Background(), "s", "/w", []acp.ContentBlock{link}))
		assert.Empty(t, r.calls)
	})
	t.Run("read failure", func(t *testing.T) {
		c, r := newConverter(nil, true)
		assert.Equal(t, want, c.ToUpstream(context.Background(), "s", "/w", []acp.ContentBlock{link}))
		assert.Len(t, r.calls, 1)
	})
	t.Run("hidden path", func(t *testing.T) {
		c, r := newConverter(map[string]string{"/w/.acpbridge/config.yaml": "secret"}, true)
		hidden := acp.ResourceLinkBlock("config.yaml", "file:///w/.acpbridge/config.yaml")
		got := c.ToUpstream(context.Background(), "s", "/w", []acp.ContentBlock{hidden})
		assert.Equal(t, []upstream.Block{upstream.TextBlock{Text: "[@config.yaml](file:///w/.acpbridge/config.yaml)"}}, got)
		assert.Empty(t, r.calls)
	})
	t.Run("non-file uri", func(t *testing.T) {
		c, r := newConverter(nil, true)
		web := acp.ResourceLinkBlock("docs", "https://go.dev")
		assert.Equal(t, []upstream.Block{upstream.TextBlock{Text: "[@docs](https://go.dev)"}}, c.ToUpstream(context.Background(), "s", "/w", []acp.ContentBlock{web}))
		assert.Empty(t, r.calls)
	})
}

func TestFenceOutgrowsBacktickRuns(t *testing.T) {
	assert.Equal(t, "```u\nplain\n```", Fence("u", "plain"))
	body := "a ```` b"
	got := Fence("u", body)
	assert.True(t, strings.HasPrefix(got, "`````u\n"))
	assert.True(t, strings.HasSuffix(got, "\n`````"))
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name  string
		block upstream.Block
		want  acp.SessionUpdate
	}{
		{"text", upstream.TextBlock{Text: "hi"}, acp.UpdateAgentMessageText("hi")},
		{"thinking", upstream.ThinkingBlock{Thinking: "hmm"}, acp.UpdateAgentThoughtText("hmm")},
		{"redacted", upstream.RedactedThinkingBlock{Data: "x"}, acp.UpdateAgentThoughtText(RedactedThinking)},
		{"document", upstream.DocumentBlock{Source: upstream.Source{Type: upstream.SourceText, Data: "doc"}, Title: "T"}, acp.UpdateAgentMessageText("T\ndoc")},
		{"image", upstream.ImageBlock{Source: upstream.Source{Type: upstream.SourceBase64, MediaType: "image/png"}}, acp.UpdateAgentMessageText("[image: image/png]")},
		{"search result", upstream.SearchResultBlock{Source: "https://s", Title: "S", Content: []upstream.TextBlock{{Text: "a"}}}, acp.UpdateAgentMessageText("S (https://s)\na")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Chunk(tt.block)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, b := range []upstream.Block{upstream.ToolUseBlock{}, upstream.ToolResultBlock{}, upstream.UnknownBlock{Type: "x"}} {
		_, ok := Chunk(b)
		assert.False(t, ok, b.BlockType())
	}
}
