package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soundserver/internal/platform/remote"
	"soundserver/internal/testutil"
)

var wavHeader = []byte("RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00")

func newTestRouter(t *testing.T) (*fixture, http.Handler) {
	f, svc := newTestService(t)
	h := NewHTTPHandler(svc, 1<<20)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /files", h.List)
	mux.HandleFunc("GET /files/get/{filename}", h.Get)
	mux.HandleFunc("GET /files/search", h.Search)
	mux.HandleFunc("GET /files/lucky", h.Lucky)
	mux.HandleFunc("POST /files/upload", h.Upload)
	mux.HandleFunc("POST /files/add-from-url", h.AddFromURL)
	return f, mux
}

func serve(h http.Handler, r *http.Request) testutil.RecordResponse {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return testutil.RecordHTTPResponse(w)
}

func TestHTTPHandler_List(t *testing.T) {
	f, router := newTestRouter(t)
	testutil.WriteSounds(t, f.storeDir, "foo.mp3")
	testutil.WriteManifest(t, f.manifestDir, "pack.jsonc", barManifest)
	require.NoError(t, f.catalog.Build(context.Background()))

	t.Run("lists every sound", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "http://localhost:3000/files", nil)
		resp := serve(router, r)

		require.Equal(t, http.StatusOK, resp.Code)
		files := resp.Files()
		require.Len(t, files, 2)
		assert.Equal(t, "foo", files[0]["name"])
		assert.Equal(t, "local", files[0]["origin"])
		assert.Equal(t, "http://localhost:3000/files/get/foo.mp3", files[0]["url"])
		assert.Equal(t, "bar-clip", files[1]["name"])
		assert.Equal(t, "remote", files[1]["origin"])
		assert.Equal(t, "http://localhost:3000/files/get/bar-clip.mp3", files[1]["url"])
		assert.NotEmpty(t, resp.Header.Get("ETag"))
	})

	t.Run("not modified", func(t *testing.T) {
		first := serve(router, httptest.NewRequest(http.MethodGet, "/files", nil))
		etag := first.Header.Get("ETag")
		require.NotEmpty(t, etag)

		r := httptest.NewRequest(http.MethodGet, "/files", nil)
		r.Header.Set("If-None-Match", etag)
		resp := serve(router, r)
		assert.Equal(t, http.StatusNotModified, resp.Code)
		assert.Empty(t, resp.Raw)
	})

	t.Run("forwarded proto", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "http://sounds.example/files", nil)
		r.Header.Set("X-Forwarded-Proto", "https")
		resp := serve(router, r)
		assert.Equal(t, "https://sounds.example/files/get/foo.mp3", resp.Files()[0]["url"])
	})

	t.Run("search alias", func(t *testing.T) {
		resp := serve(router, httptest.NewRequest(http.MethodGet, "/files?search=bar&limit=1", nil))
		require.Equal(t, http.StatusOK, resp.Code)
		files := resp.Files()
		require.Len(t, files, 1)
		assert.Equal(t, "bar-clip", files[0]["name"])
	})

	t.Run("lucky alias", func(t *testing.T) {
		resp := serve(router, httptest.NewRequest(http.MethodGet, "/files?lucky=foo", nil))
		assert.Equal(t, http.StatusSeeOther, resp.Code)
		assert.Equal(t, "/files/get/foo.mp3", resp.Header.Get("Location"))
	})
}

func TestHTTPHandler_Search(t *testing.T) {
	f, router := newTestRouter(t)
	testutil.WriteSounds(t, f.storeDir, "air-horn.mp3", "tada.wav", "horn.mp3")
	require.NoError(t, f.catalog.Build(context.Background()))

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantLen  int
	}{
		{"default limit", "?search=horn", http.StatusOK, 3},
		{"limit", "?search=horn&limit=1", http.StatusOK, 1},
		{"no term", "", http.StatusOK, 0},
		{"bad limit", "?search=horn&limit=abc", http.StatusBadRequest, 0},
		{"zero limit", "?search=horn&limit=0", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := serve(router, httptest.NewRequest(http.MethodGet, "/files/search"+tt.query, nil))
			assert.Equal(t, tt.wantCode, resp.Code)
			if tt.wantCode == http.StatusOK {
				assert.Len(t, resp.Files(), tt.wantLen)
			} else {
				assert.Equal(t, "INVALID_INPUT", resp.ErrorCode())
			}
		})
	}
}

func TestHTTPHandler_Lucky(t *testing.T) {
	f, router := newTestRouter(t)
	testutil.WriteSounds(t, f.storeDir, "tada.wav")
	require.NoError(t, f.catalog.Build(context.Background()))

	t.Run("redirects", func(t *testing.T) {
		resp := serve(router, httptest.NewRequest(http.MethodGet, "/files/lucky?search=tad", nil))
		assert.Equal(t, http.StatusSeeOther, resp.Code)
		assert.Equal(t, "/files/get/tada.wav", resp.Header.Get("Location"))
	})

	t.Run("unlucky", func(t *testing.T) {
		resp := serve(router, httptest.NewRequest(http.MethodGet, "/files/lucky", nil))
		assert.Equal(t, http.StatusNotFound, resp.Code)
		assert.Equal(t, "u r unlucki", resp.ErrorMessage())
	})
}

func TestHTTPHandler_Get(t *testing.T) {
	f, router := newTestRouter(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.storeDir, "foo.wav"), wavHeader, 0o644))
	testutil.WriteManifest(t, f.manifestDir, "pack.jsonc", barManifest)
	require.NoError(t, f.catalog.Build(context.Background()))

	t.Run("local", func(t *testing.T) {
		resp := serve(router, httptest.NewRequest(http.MethodGet, "/files/get/foo.wav", nil))
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))
		assert.Equal(t, wavHeader, resp.Raw)
	})

	t.Run("remote failure", func(t *testing.T) {
		f.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&remote.FetchError{URL: "https://cdn.example.com/sounds/bar.mp3", StatusCode: http.StatusBadGateway})

		resp := serve(router, httptest.NewRequest(http.MethodGet, "/files/get/bar-clip.mp3", nil))
		assert.Equal(t, http.StatusInternalServerError, resp.Code)
		assert.Equal(t, "REMOTE_FETCH_FAILED", resp.ErrorCode())
	})

	t.Run("remote", func(t *testing.T) {
		f.fetcher.EXPECT().Fetch(gomock.Any(), "https://cdn.example.com/sounds/bar.mp3", gomock.Any()).
			DoAndReturn(func(ctx context.Context, url, dest string) error {
				return os.WriteFile(dest, wavHeader, 0o644)
			})

		resp := serve(router, httptest.NewRequest(http.MethodGet, "/files/get/bar-clip.mp3", nil))
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, wavHeader, resp.Raw)

		list := serve(router, httptest.NewRequest(http.MethodGet, "/files", nil))
		assert.Equal(t, "local", list.Files()[0]["origin"])
	})

	t.Run("not found", func(t *testing.T) {
		resp := serve(router, httptest.NewRequest(http.MethodGet, "/files/get/missing.wav", nil))
		assert.Equal(t, http.StatusNotFound, resp.Code)
		assert.Equal(t, "NOT_FOUND", resp.ErrorCode())
	})
}

func TestHTTPHandler_Upload(t *testing.T) {
	t.Run("stores and lists", func(t *testing.T) {
		f, router := newTestRouter(t)
		require.NoError(t, f.catalog.Build(context.Background()))

		resp := serve(router, testutil.NewUploadRequest(t, "/files/upload", "upload", "New Clip.wav", wavHeader))
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "ok", string(resp.Raw))

		list := serve(router, httptest.NewRequest(http.MethodGet, "/files", nil))
		files := list.Files()
		require.Len(t, files, 1)
		assert.Equal(t, "new-clip", files[0]["name"])
	})

	t.Run("rejects extension", func(t *testing.T) {
		f, router := newTestRouter(t)
		testutil.WriteSounds(t, f.storeDir, "foo.wav")

		resp := serve(router, testutil.NewUploadRequest(t, "/files/upload", "upload", "notes.txt", []byte("hello")))
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Equal(t, "UNSUPPORTED_EXTENSION", resp.ErrorCode())
		assert.Equal(t, "File extension not allowed. Must be one of: .wav, .mp3.", resp.ErrorMessage())
		assert.Equal(t, []string{"foo.wav"}, testutil.ListDir(t, f.storeDir))
	})

	t.Run("missing field", func(t *testing.T) {
		_, router := newTestRouter(t)
		resp := serve(router, testutil.NewUploadRequest(t, "/files/upload", "", "", nil))
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Equal(t, "VALIDATION_ERROR", resp.ErrorCode())
	})
}

func TestHTTPHandler_AddFromURL(t *testing.T) {
	t.Run("downloads", func(t *testing.T) {
		f, router := newTestRouter(t)
		f.fetcher.EXPECT().
			Fetch(gomock.Any(), "https://x.example/boom.mp3", filepath.Join(f.storeDir, "kaboom.mp3")).
			DoAndReturn(writeTo("ID3"))

		form := url.Values{"url": {"https://x.example/boom.mp3"}, "name": {"kaboom"}}
		resp := serve(router, testutil.NewFormRequest("/files/add-from-url", form))
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "ok", string(resp.Raw))
	})

	tests := []struct {
		name     string
		form     url.Values
		wantCode string
	}{
		{"missing url", url.Values{"name": {"x"}}, "VALIDATION_ERROR"},
		{"missing name", url.Values{"url": {"https://x.example/a.mp3"}}, "VALIDATION_ERROR"},
		{"not a url", url.Values{"url": {"nope"}, "name": {"x"}}, "VALIDATION_ERROR"},
		{"hidden name", url.Values{"url": {"https://x.example/a.mp3"}, "name": {".x"}}, "VALIDATION_ERROR"},
		{"bad extension", url.Values{"url": {"https://x.example/a.flac"}, "name": {"x"}}, "UNSUPPORTED_EXTENSION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, router := newTestRouter(t)
			resp := serve(router, testutil.NewFormRequest("/files/add-from-url", tt.form))
			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.Equal(t, tt.wantCode, resp.ErrorCode())
		})
	}
}
