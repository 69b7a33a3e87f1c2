package document

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestLoader_LoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.txt"), []byte("bravo"))
	writeFile(t, filepath.Join(dir, "a.md"), []byte("# alpha"))
	writeFile(t, filepath.Join(dir, "nested", "c.txt"), []byte("charlie"))
	writeFile(t, filepath.Join(dir, ".hidden", "d.txt"), []byte("delta"))
	writeFile(t, filepath.Join(dir, "empty.txt"), []byte("   \n"))
	writeFile(t, filepath.Join(dir, "blob.bin"), []byte{0xff, 0xfe, 0x00, 0x81})

	docs, failures, err := NewLoader(nil).LoadDirectory(context.Background(), dir)
	require.NoError(t, err)

	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.FileName
	}
	assert.Equal(t, []string{"a.md", "b.txt", "c.txt"}, names)
	assert.Equal(t, "charlie", docs[2].Content)

	require.Len(t, failures, 2)
	failed := []string{filepath.Base(failures[0].Path), filepath.Base(failures[1].Path)}
	assert.ElementsMatch(t, []string{"blob.bin", "empty.txt"}, failed)
}

func TestLoader_MissingDirectory(t *testing.T) {
	_, _, err := NewLoader(nil).LoadDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestLoader_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), []byte("alpha"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewLoader(nil).LoadDirectory(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoader_UsesTikaForBinaryFormats(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tika", r.URL.Path)
		assert.Equal(t, "text/plain", r.Header.Get("Accept"))
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte("extracted pdf text"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "report.pdf"), []byte("%PDF-1.7 binary"))
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("plain"))

	loader := NewLoader(NewTikaParser(srv.URL, time.Second, 1))
	docs, failures, err := loader.LoadDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, docs, 2)

	assert.Equal(t, "plain", docs[0].Content)
	assert.Equal(t, "extracted pdf text", docs[1].Content)
	assert.Equal(t, "report.pdf", docs[1].FileName)
	assert.Equal(t, []byte("%PDF-1.7 binary"), gotBody)
}
