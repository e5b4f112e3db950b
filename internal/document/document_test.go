package document

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/llmdiag/pkg/types"
)

func TestLines(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", []string{""}},
		{"single", "a", []string{"a"}},
		{"lf", "a\nb", []string{"a", "b"}},
		{"crlf", "a\r\nb\r\n", []string{"a", "b", ""}},
		{"mixed", "a\nb\r\nc", []string{"a", "b", "c"}},
		{"lone cr kept", "a\rb", []string{"a\rb"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Lines(tt.text))
			assert.Equal(t, len(tt.want), LineCount(tt.text))
		})
	}
}

func TestAFSSource_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))

	src := NewAFSSource()
	text, err := src.Read(context.Background(), types.DocumentID(path))
	require.NoError(t, err)
	assert.Equal(t, "package main\n", text)

	_, err = src.Read(context.Background(), types.DocumentID(filepath.Join(t.TempDir(), "absent.go")))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = src.Read(context.Background(), "")
	assert.ErrorIs(t, err, types.ErrEmptyDocumentID)
}

func TestAFSSource_Memory(t *testing.T) {
	ctx := context.Background()
	src := NewAFSSource()
	const url = "mem://localhost/llmdiag/document_test/app.go"

	require.NoError(t, src.Service().Upload(ctx, url, 0o644, strings.NewReader("x := 1\n")))
	text, err := src.Read(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, "x := 1\n", text)
}

type stubSource map[types.DocumentID]string

func (s stubSource) Read(_ context.Context, id types.DocumentID) (string, error) {
	text, ok := s[id]
	if !ok {
		return "", ErrNotFound
	}
	return text, nil
}

func TestOverlay(t *testing.T) {
	ctx := context.Background()
	o := NewOverlay(stubSource{"/disk.go": "on disk"})

	text, err := o.Read(ctx, "/disk.go")
	require.NoError(t, err)
	assert.Equal(t, "on disk", text)

	o.Set("/disk.go", "unsaved")
	text, err = o.Read(ctx, "/disk.go")
	require.NoError(t, err)
	assert.Equal(t, "unsaved", text)

	o.Remove("/disk.go")
	text, err = o.Read(ctx, "/disk.go")
	require.NoError(t, err)
	assert.Equal(t, "on disk", text)

	_, err = NewOverlay(nil).Read(ctx, "/x.go")
	assert.ErrorIs(t, err, ErrNotFound)
}
