// Package ingest turns user files into prompt attachments.
package ingest

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/johnayoung/llm-verify/internal/prompt"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxTextBytes bounds the text summary of a single file.
	MaxTextBytes = 10_000

	truncatedMarker = "\n[truncated]"
	readLimit       = 4
)

// File is a user-supplied attachment. When Data is nil it is read from Path.
type File struct {
	Name      string
	Path      string
	MediaType string
	Data      []byte
}

// FromPaths describes local files to be read by Load.
func FromPaths(paths []string) []File {
	files := make([]File, len(paths))
	for i, p := range paths {
		files[i] = File{Name: filepath.Base(p), Path: p}
	}
	return files
}

// Load reads and summarizes files concurrently. The result keeps input order.
// Unsupported types are not an error; they produce a placeholder summary.
func Load(ctx context.Context, files []File) ([]prompt.Attachment, error) {
	out := make([]prompt.Attachment, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(readLimit)

	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if f.Data == nil && f.Path != "" {
				data, err := os.ReadFile(f.Path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", f.Path, err)
				}
				f.Data = data
			}
			out[i] = Summarize(f)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Summarize converts one in-memory file into an attachment.
func Summarize(f File) prompt.Attachment {
	mediaType := baseType(f.MediaType)
	if mediaType == "" {
		mediaType = baseType(mimetype.Detect(f.Data).String())
	}

	a := prompt.Attachment{Name: f.Name, Type: mediaType}
	switch {
	case strings.HasPrefix(mediaType, "text/"), mediaType == "application/json":
		a.Summary = truncate(strings.ToValidUTF8(string(f.Data), "�"), MaxTextBytes)
	case mediaType == "application/pdf":
		a.Summary = fmt.Sprintf("[PDF file: %s, %d bytes]", f.Name, len(f.Data))
	case strings.HasPrefix(mediaType, "image/"):
		a.Summary = fmt.Sprintf("[Image file: %s, %d bytes]", f.Name, len(f.Data))
	default:
		a.Summary = fmt.Sprintf("[Unsupported file type: %s]", mediaType)
	}
	return a
}

// baseType strips parameters such as charset from a media type.
func baseType(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(strings.SplitN(t, ";", 2)[0]))
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncatedMarker
}
