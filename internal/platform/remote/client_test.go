package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.mp3":
			assert.Equal(t, "soundserver-test", r.Header.Get("User-Agent"))
			_, _ = w.Write([]byte("ID3 fake audio"))
		case "/missing.mp3":
			http.Error(w, "nope", http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := NewClient("soundserver-test", 0, 5*time.Second)
	ctx := context.Background()

	t.Run("success writes body", func(t *testing.T) {
		dir := t.TempDir()
		dest := filepath.Join(dir, "ok.mp3")

		err := client.Fetch(ctx, srv.URL+"/ok.mp3", dest)
		require.NoError(t, err)

		data, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "ID3 fake audio", string(data))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temp file left behind")
	})

	t.Run("overwrites existing file", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "ok.mp3")
		require.NoError(t, os.WriteFile(dest, []byte("old"), 0o644))

		require.NoError(t, client.Fetch(ctx, srv.URL+"/ok.mp3", dest))

		data, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "ID3 fake audio", string(data))
	})

	t.Run("non 2xx status", func(t *testing.T) {
		dir := t.TempDir()
		dest := filepath.Join(dir, "missing.mp3")

		err := client.Fetch(ctx, srv.URL+"/missing.mp3", dest)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrFetch))

		var fetchErr *FetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
		assert.Contains(t, err.Error(), srv.URL+"/missing.mp3")

		_, statErr := os.Stat(dest)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("transport failure", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "x.mp3")

		err := client.Fetch(ctx, "http://127.0.0.1:1/x.mp3", dest)
		require.Error(t, err)

		var fetchErr *FetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Zero(t, fetchErr.StatusCode)
		assert.NotNil(t, fetchErr.Err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		err := client.Fetch(cctx, srv.URL+"/ok.mp3", filepath.Join(t.TempDir(), "ok.mp3"))
		assert.ErrorIs(t, err, ErrFetch)
	})
}

func TestWriteFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "clip.wav")

	n, err := WriteFile(dest, strings.NewReader("RIFF"))
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data))
}
