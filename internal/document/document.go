// Package document reads the current text of documents and splits it into lines.
package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/viant/afs"

	"github.com/dshills/llmdiag/pkg/types"
)

// ErrNotFound is returned when a document cannot be located
var ErrNotFound = errors.New("document not found")

// Source returns the live text of a document
type Source interface {
	Read(ctx context.Context, id types.DocumentID) (string, error)
}

// Lines splits text on \n or \r\n. A trailing newline yields a final empty
// line, so len(Lines(t)) is the editor's line count.
func Lines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// LineCount returns len(Lines(text)) without allocating the slice
func LineCount(text string) int {
	return strings.Count(text, "\n") + 1
}

// AFSSource reads documents through viant/afs, so IDs may be plain paths or
// any URL afs understands (file://, mem://, ...).
type AFSSource struct {
	fs afs.Service
}

// NewAFSSource creates a source backed by afs.New()
func NewAFSSource() *AFSSource {
	return &AFSSource{fs: afs.New()}
}

// Service exposes the underlying afs service
func (s *AFSSource) Service() afs.Service {
	return s.fs
}

// Read implements Source
func (s *AFSSource) Read(ctx context.Context, id types.DocumentID) (string, error) {
	if id == "" {
		return "", types.ErrEmptyDocumentID
	}
	ok, err := s.fs.Exists(ctx, string(id))
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", id, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	data, err := s.fs.DownloadWithURL(ctx, string(id))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", id, err)
	}
	return string(data), nil
}

// Overlay serves unsaved editor buffers and falls back to another source
// for documents it does not hold.
type Overlay struct {
	fallback Source

	mu   sync.RWMutex
	docs map[types.DocumentID]string
}

// NewOverlay creates an overlay over fallback. A nil fallback makes
// unknown documents return ErrNotFound.
func NewOverlay(fallback Source) *Overlay {
	return &Overlay{fallback: fallback, docs: make(map[types.DocumentID]string)}
}

// Set records the buffer contents for id
func (o *Overlay) Set(id types.DocumentID, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.docs[id] = text
}

// Remove forgets the buffer for id, e.g. when the editor closes it
func (o *Overlay) Remove(id types.DocumentID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.docs, id)
}

// Read implements Source
func (o *Overlay) Read(ctx context.Context, id types.DocumentID) (string, error) {
	o.mu.RLock()
	text, ok := o.docs[id]
	o.mu.RUnlock()
	if ok {
		return text, nil
	}
	if o.fallback == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return o.fallback.Read(ctx, id)
}
