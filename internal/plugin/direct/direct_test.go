package direct_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/DINO060/mediasink/internal/plugin"
	"github.com/DINO060/mediasink/internal/plugin/direct"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanHandleAcceptsOnlyAbsoluteHTTP(t *testing.T) {
	handler := direct.New()

	assert.True(t, handler.CanHandle("https://example.com/file.bin"))
	assert.True(t, handler.CanHandle("http://example.com/file.bin"))
	assert.False(t, handler.CanHandle("ftp://example.com/file.bin"))
	assert.False(t, handler.CanHandle("/relative/path"))
	assert.False(t, handler.CanHandle("https://"))
}

func TestExtractInfoUsesHeadRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", "2048")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	metadata, err := direct.New().ExtractInfo(context.Background(), server.URL+"/clip.mp4")
	require.Nil(t, err)

	assert.Equal(t, "clip.mp4", metadata["title"])
	assert.Equal(t, "video/mp4", metadata["content_type"])
	assert.Equal(t, int64(2048), metadata["filesize"])
}

func TestExtractInfoRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := direct.New().ExtractInfo(context.Background(), server.URL+"/missing")
	assert.NotNil(t, err)
}

func TestFetchStreamsToDestDir(t *testing.T) {
	content := []byte("some binary payload")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(content)
	}))
	defer server.Close()

	destDir := t.TempDir()
	result, err := direct.New().Fetch(context.Background(), server.URL+"/artifact.bin", destDir, plugin.Options{})
	require.Nil(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, filepath.Join(destDir, "artifact.bin"), result.LocalPath)
	assert.Equal(t, int64(len(content)), result.Metadata["filesize"])

	written, err := os.ReadFile(result.LocalPath)
	require.Nil(t, err)
	assert.Equal(t, content, written)
}

func TestFetchHonoursContentDisposition(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="../sneaky name.mp4"`)
		_, _ = w.Write([]byte("x"))
	}))
	defer server.Close()

	destDir := t.TempDir()
	result, err := direct.New().Fetch(context.Background(), server.URL+"/ignored", destDir, plugin.Options{})
	require.Nil(t, err)

	// The supplied filename is sanitised and confined to destDir
	assert.Equal(t, filepath.Join(destDir, "sneaky_name.mp4"), result.LocalPath)
}

func TestFetchFailsOnErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	destDir := t.TempDir()
	result, err := direct.New().Fetch(context.Background(), server.URL+"/denied", destDir, plugin.Options{})
	assert.NotNil(t, err)
	assert.False(t, result.Success)

	entries, readErr := os.ReadDir(destDir)
	require.Nil(t, readErr)
	assert.Len(t, entries, 0, "no partial file may be left behind")
}
