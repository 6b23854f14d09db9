// Package content converts prompt parts from the client into upstream
// content blocks, and upstream content blocks into client updates.
package content

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/coder/acp-go-sdk"
	"github.com/m4xw311/acpbridge/config"
	"github.com/m4xw311/acpbridge/errors"
	"github.com/m4xw311/acpbridge/upstream"
	"github.com/rs/zerolog"
)

// maxInlineSize caps file contents inlined into a prompt.
const maxInlineSize = 50000

// FileReader is the client's fs/read_text_file method.
type FileReader interface {
	ReadTextFile(ctx context.Context, req acp.ReadTextFileRequest) (acp.ReadTextFileResponse, error)
}

// Converter turns a client prompt into upstream blocks. Resource links are
// resolved through the client when it has said it can read files.
type Converter struct {
	reader  FileReader
	fs      config.FilesystemAccess
	canRead atomic.Bool
	log     zerolog.Logger
}

func NewConverter(reader FileReader, fs config.FilesystemAccess, log zerolog.Logger) *Converter {
	return &Converter{reader: reader, fs: fs, log: log}
}

// SetCanReadFiles records the client's fs.readTextFile capability.
func (c *Converter) SetCanReadFiles(ok bool) {
	c.canRead.Store(ok)
}

// ToUpstream converts parts in order. Parts that cannot be represented are
// dropped with a log line; nothing here fails the prompt.
func (c *Converter) ToUpstream(ctx context.Context, sessionID, cwd string, parts []acp.ContentBlock) []upstream.Block {
	log := c.log.With().Str("session_id", sessionID).Logger()
	blocks := make([]upstream.Block, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.Text != nil:
			blocks = append(blocks, upstream.TextBlock{Text: p.Text.Text})
		case p.Image != nil:
			if b, ok := imageBlock(p.Image); ok {
				blocks = append(blocks, b)
			} else {
				log.Warn().Str("mime_type", p.Image.MimeType).Msg("dropping image without data")
			}
		case p.ResourceLink != nil:
			blocks = append(blocks, c.resolveLink(ctx, sessionID, cwd, p.ResourceLink, log))
		case p.Resource != nil:
			if b, ok := embeddedResource(p.Resource.Resource); ok {
				blocks = append(blocks, b)
			} else {
				log.Warn().Msg("dropping embedded resource without contents")
			}
		case p.Audio != nil:
			log.Debug().Msg("dropping audio prompt part")
		default:
			log.Warn().Msg("dropping unknown prompt part")
		}
	}
	return blocks
}

func imageBlock(img *acp.ContentBlockImage) (upstream.Block, bool) {
	if img.Data != "" {
		return upstream.ImageBlock{Source: upstream.Source{Type: upstream.SourceBase64, MediaType: img.MimeType, Data: img.Data}}, true
	}
	if img.Uri != nil && (strings.HasPrefix(*img.Uri, "http://") || strings.HasPrefix(*img.Uri, "https://")) {
		return upstream.ImageBlock{Source: upstream.Source{Type: upstream.SourceURL, URL: *img.Uri}}, true
	}
	return nil, false
}

func (c *Converter) resolveLink(ctx context.Context, sessionID, cwd string, link *acp.ContentBlockResourceLink, log zerolog.Logger) upstream.Block {
	fallback := upstream.TextBlock{Text: LinkText(link.Name, link.Uri)}
	if !c.canRead.Load() || c.reader == nil {
		return fallback
	}
	path, ok := filePath(link.Uri)
	if !ok {
		return fallback
	}
	if c.hidden(cwd, path) {
		log.Info().Str("path", path).Msg("resource link points at a hidden path, not reading it")
		return fallback
	}

	resp, err := c.reader.ReadTextFile(ctx, acp.ReadTextFileRequest{SessionId: acp.SessionId(sessionID), Path: path})
	if err != nil {
		err = errors.Wrapf(errors.ErrClientFileRead, "%s: %v", path, err)
		log.Warn().Err(err).Msg("falling back to link")
		return fallback
	}
	return upstream.TextBlock{Text: Fence(link.Uri, truncate(resp.Content))}
}

// truncate caps text at maxInlineSize bytes without splitting a rune.
func truncate(text string) string {
	if len(text) <= maxInlineSize {
		return text
	}
	cut := maxInlineSize
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "\n\n[... truncated to 50KB ...]"
}

func (c *Converter) hidden(cwd, path string) bool {
	if c.fs.IsHidden(path) {
		return true
	}
	if cwd == "" {
		return false
	}
	rel, err := filepath.Rel(cwd, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	return c.fs.IsHidden(filepath.ToSlash(rel))
}

// filePath extracts a local path from a file:// URI or a bare absolute path.
func filePath(uri string) (string, bool) {
	if strings.HasPrefix(uri, "/") {
		return uri, true
	}
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" || u.Path == "" {
		return "", false
	}
	return u.Path, true
}

func embeddedResource(r acp.EmbeddedResourceResource) (upstream.Block, bool) {
	switch {
	case r.TextResourceContents != nil:
		mime := "text/plain"
		if m := r.TextResourceContents.MimeType; m != nil && *m != "" {
			mime = *m
		}
		return upstream.DocumentBlock{Source: upstream.Source{Type: upstream.SourceText, MediaType: mime, Data: r.TextResourceContents.Text}}, true
	case r.BlobResourceContents != nil:
		mime := "application/pdf"
		if m := r.BlobResourceContents.MimeType; m != nil && *m != "" {
			mime = *m
		}
		return upstream.DocumentBlock{Source: upstream.Source{Type: upstream.SourceBase64, MediaType: mime, Data: r.BlobResourceContents.Blob}}, true
	}
	return nil, false
}

// LinkText is the markdown form of a resource reference.
func LinkText(name, uri string) string {
	if name == "" {
		name = uri
	}
	return fmt.Sprintf("[@%s](%s)", name, uri)
}

// Fence wraps text in a code fence longer than any backtick run inside it,
// with uri as the info string.
func Fence(uri, text string) string {
	longest, run := 0, 0
	for _, r := range text {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	fence := strings.Repeat("`", max(3, longest+1))
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return fmt.Sprintf("%s%s\n%s%s", fence, uri, text, fence)
}
