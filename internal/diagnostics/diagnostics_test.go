package diagnostics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/llmdiag/internal/storage"
	"github.com/dshills/llmdiag/pkg/types"
)

func issue(line int, content, msg string) types.ReconciledIssue {
	return types.ReconciledIssue{
		Issue: types.Issue{
			FileName:    "main.go",
			Line:        line,
			Column:      5,
			Length:      3,
			Message:     msg,
			LineContent: content,
		},
		OriginalLine: line,
		Status:       types.StatusUnchanged,
	}
}

func TestRender(t *testing.T) {
	got := Render([]types.ReconciledIssue{
		issue(7, "    foo()", "nil receiver"),
		issue(1, "", "missing doc"),
	})
	require.Len(t, got, 2)

	assert.Equal(t, types.Range{StartLine: 6, StartCol: 4, EndLine: 6, EndCol: 7}, got[0].Range)
	assert.Equal(t, "[Code]:     foo()\n[Issue]: nil receiver", got[0].Message)
	assert.Equal(t, types.SeverityError, got[0].Severity)
	assert.Equal(t, types.DiagnosticSource, got[0].Source)

	assert.Equal(t, "missing doc", got[1].Message)
	assert.Empty(t, Render(nil))
}

func TestStorePublisher(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	p := NewStorePublisher(store)
	id := types.DocumentID("/src/main.go")

	require.NoError(t, p.Publish(ctx, id, "aaa", []types.ReconciledIssue{
		issue(1, "a", "first"), issue(2, "b", "second"),
	}))
	diags, err := p.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, diags, 2)

	// Replace, not append
	require.NoError(t, p.Publish(ctx, id, "bbb", []types.ReconciledIssue{issue(3, "c", "third")}))
	diags, err = p.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, 2, diags[0].Range.StartLine)

	require.NoError(t, p.Clear(ctx, id))
	diags, err = p.Load(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestWriterPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewWriterPublisher(&buf)
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, "/a.go", "aaa", []types.ReconciledIssue{issue(2, "x", "m")}))
	require.NoError(t, p.Clear(ctx, "/a.go"))

	dec := json.NewDecoder(&buf)
	var ev Event
	require.NoError(t, dec.Decode(&ev))
	assert.Equal(t, types.DocumentID("/a.go"), ev.Document)
	assert.Equal(t, types.Fingerprint("aaa"), ev.Fingerprint)
	require.Len(t, ev.Diagnostics, 1)
	assert.Equal(t, 1, ev.Diagnostics[0].Range.StartLine)

	require.NoError(t, dec.Decode(&ev))
	assert.Empty(t, ev.Diagnostics)
}

type failing struct{ err error }

func (f failing) Publish(context.Context, types.DocumentID, types.Fingerprint, []types.ReconciledIssue) error {
	return f.err
}

func (f failing) Clear(context.Context, types.DocumentID) error { return f.err }

func TestMulti(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("boom")
	m := Multi{failing{boom}, NewWriterPublisher(&buf)}

	err := m.Publish(context.Background(), "/a.go", "aaa", nil)
	assert.ErrorIs(t, err, boom)
	// The healthy publisher still ran
	assert.Contains(t, buf.String(), "/a.go")

	assert.ErrorIs(t, m.Clear(context.Background(), "/a.go"), boom)
}

func TestStorePublisher_PublishTx(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	p := NewStorePublisher(store)
	id := types.DocumentID("/src/main.go")

	t.Run("rollback discards issues", func(t *testing.T) {
		tx, err := store.BeginTx(ctx)
		require.NoError(t, err)
		require.NoError(t, p.PublishTx(ctx, tx, id, "aaa", []types.ReconciledIssue{issue(1, "a", "first")}))
		require.NoError(t, tx.Rollback())

		diags, err := p.Load(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, diags)
	})

	t.Run("multi joins the transaction", func(t *testing.T) {
		var buf bytes.Buffer
		m := Multi{p, NewWriterPublisher(&buf)}

		tx, err := store.BeginTx(ctx)
		require.NoError(t, err)
		require.NoError(t, m.PublishTx(ctx, tx, id, "bbb", []types.ReconciledIssue{issue(2, "b", "second")}))
		require.NoError(t, tx.Commit())

		diags, err := p.Load(ctx, id)
		require.NoError(t, err)
		require.Len(t, diags, 1)
		assert.Contains(t, buf.String(), "/src/main.go")
	})
}
