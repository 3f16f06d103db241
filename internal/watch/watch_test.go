package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

type call struct {
	path     string
	metadata vectorstore.Filter
}

// recordingIngester tags each ingestion with one node and remembers the
// live nodes per tag.
type recordingIngester struct {
	mu      sync.Mutex
	calls   []call
	nodes   []vectorstore.Node
	deleted []uint64
	nextID  uint64
	err     error
}

func (r *recordingIngester) AddDocument(_ context.Context, path string, metadata vectorstore.Filter) ([]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{path: path, metadata: metadata})
	if r.err != nil {
		return nil, r.err
	}
	r.nextID++
	r.nodes = append(r.nodes, vectorstore.Node{TextID: r.nextID, Sentence: path, Metadata: metadata})
	return []uint64{r.nextID}, nil
}

func (r *recordingIngester) Query(_ context.Context, _ []float32, filters []vectorstore.Filter) ([]vectorstore.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []vectorstore.Node{}
	for _, n := range r.nodes {
		if vectorstore.Matches(n, filters) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *recordingIngester) Delete(_ context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.nodes {
		if n.TextID == id {
			r.nodes = append(r.nodes[:i], r.nodes[i+1:]...)
			r.deleted = append(r.deleted, id)
			return nil
		}
	}
	return vectorstore.ErrNotFound
}

func (r *recordingIngester) Calls() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

func (r *recordingIngester) Live() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint64, len(r.nodes))
	for i, n := range r.nodes {
		ids[i] = n.TextID
	}
	return ids
}

func startWatcher(t *testing.T, dir string, ing Ingester) *Watcher {
	t.Helper()
	w, err := NewWatcher(dir, ing, Config{
		Debounce:   50 * time.Millisecond,
		Extensions: []string{".txt", ".MD"},
	}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	require.NoError(t, w.Start(ctx))
	return w
}

func waitResult(t *testing.T, w *Watcher) Result {
	t.Helper()
	select {
	case r := <-w.Results():
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for ingestion")
		return Result{}
	}
}

func TestNewWatcher(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{}

	t.Run("missing directory", func(t *testing.T) {
		_, err := NewWatcher(filepath.Join(dir, "absent"), ing, Config{}, nil)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("file instead of directory", func(t *testing.T) {
		file := filepath.Join(dir, "f.txt")
		require.NoError(t, os.WriteFile(file, nil, 0o644))
		_, err := NewWatcher(file, ing, Config{}, nil)
		assert.ErrorIs(t, err, ErrNotDirectory)
	})

	t.Run("nil ingester", func(t *testing.T) {
		_, err := NewWatcher(dir, nil, Config{}, nil)
		assert.Error(t, err)
	})
}

func TestWatcher_IngestsNewFiles(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{}
	w := startWatcher(t, dir, ing)

	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("Some notes."), 0o644))

	r := waitResult(t, w)
	require.NoError(t, r.Err)
	assert.Equal(t, path, r.Path)
	assert.Equal(t, []uint64{1}, r.IDs)

	calls := ing.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, vectorstore.Filter{Key: SourceKey, Value: "notes.txt"}, calls[0].metadata)
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{}
	w := startWatcher(t, dir, ing)

	path := filepath.Join(dir, "log.md")
	f, err := os.Create(path)
	require.NoError(t, err)
	for range 5 {
		_, err := f.WriteString("More text. ")
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	waitResult(t, w)
	time.Sleep(150 * time.Millisecond)
	assert.Len(t, ing.Calls(), 1)
}

func TestWatcher_ReplacesRewrittenFiles(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{}
	w := startWatcher(t, dir, ing)

	path := filepath.Join(dir, "draft.txt")
	require.NoError(t, os.WriteFile(path, []byte("First draft."), 0o644))
	first := waitResult(t, w)
	require.NoError(t, first.Err)
	assert.Empty(t, first.Replaced)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("Unrelated."), 0o644))
	other := waitResult(t, w)
	require.NoError(t, other.Err)

	require.NoError(t, os.WriteFile(path, []byte("Second draft."), 0o644))
	second := waitResult(t, w)
	require.NoError(t, second.Err)
	assert.Equal(t, first.IDs, second.Replaced)

	assert.ElementsMatch(t, append(other.IDs, second.IDs...), ing.Live())
}

func TestWatcher_FailedReingestKeepsPrevious(t *testing.T) {
	ing := &recordingIngester{}
	w, err := NewWatcher(t.TempDir(), ing, Config{Extensions: []string{".txt"}}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	w.ingest(ctx, "/docs/a.txt")
	first := <-w.Results()
	require.NoError(t, first.Err)

	ing.mu.Lock()
	ing.err = errors.New("extraction failed")
	ing.mu.Unlock()

	w.ingest(ctx, "/docs/a.txt")
	second := <-w.Results()
	require.Error(t, second.Err)
	assert.Empty(t, second.Replaced)
	assert.Equal(t, first.IDs, ing.Live())
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{}
	w := startWatcher(t, dir, ing)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte("png"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.txt"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "last.txt"), []byte("x"), 0o644))

	r := waitResult(t, w)
	assert.Equal(t, "last.txt", filepath.Base(r.Path))
	assert.Len(t, ing.Calls(), 1)
}

func TestWatcher_ReportsFailures(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{err: errors.New("extraction failed")}
	w := startWatcher(t, dir, ing)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.txt"), []byte("x"), 0o644))

	r := waitResult(t, w)
	assert.EqualError(t, r.Err, "extraction failed")
}

func TestWatcher_StopCancelsPending(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{}
	w, err := NewWatcher(dir, ing, Config{Debounce: time.Hour, Extensions: []string{".txt"}}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "slow.txt"), []byte("x"), 0o644))
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.pending) == 1
	}, 2*time.Second, 10*time.Millisecond)

	w.Stop()
	w.Stop()
	assert.Empty(t, ing.Calls())
}
