package catalog

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/gabriel-vasile/mimetype"

	"soundserver/internal/httpx"
	"soundserver/internal/naming"
	"soundserver/internal/platform/remote"
)

const unluckyMessage = "u r unlucki"

type HTTPHandler struct {
	svc           *Service
	maxUploadSize int64
}

func NewHTTPHandler(svc *Service, maxUploadSize int64) *HTTPHandler {
	return &HTTPHandler{svc: svc, maxUploadSize: maxUploadSize}
}

// List handles GET /files
// @Summary List sounds
// @Description Every local and third-party sound. ?search= and ?lucky= behave like /files/search and /files/lucky.
// @Tags files
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} httpx.ErrorResponse
// @Router /files [get]
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("search") != "" {
		h.Search(w, r)
		return
	}
	if query.Get("lucky") != "" {
		h.lucky(w, r, query.Get("lucky"))
		return
	}

	files, err := h.svc.List(r.Context(), baseURL(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONWithETag(w, r, map[string]any{"files": files})
}

// Search handles GET /files/search
// @Summary Fuzzy search sounds
// @Tags files
// @Produce json
// @Param search query string true "Search term"
// @Param limit query int false "Maximum results" default(5)
// @Success 200 {object} map[string]interface{}
// @Router /files/search [get]
func (h *HTTPHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := DefaultSearchLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httpx.JSONError(w, r, http.StatusBadRequest, "INVALID_INPUT", "limit must be a positive integer", nil)
			return
		}
		limit = min(n, MaxSearchLimit)
	}

	files, err := h.svc.Search(r.Context(), baseURL(r), query.Get("search"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"files": files})
}

// Lucky handles GET /files/lucky
// @Summary Redirect to the best match
// @Tags files
// @Param search query string true "Search term"
// @Success 303
// @Failure 404 {object} httpx.ErrorResponse
// @Router /files/lucky [get]
func (h *HTTPHandler) Lucky(w http.ResponseWriter, r *http.Request) {
	h.lucky(w, r, r.URL.Query().Get("search"))
}

func (h *HTTPHandler) lucky(w http.ResponseWriter, r *http.Request, term string) {
	location, err := h.svc.Lucky(r.Context(), term)
	if errors.Is(err, ErrNotFound) {
		httpx.JSONError(w, r, http.StatusNotFound, "NOT_FOUND", unluckyMessage, nil)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// Get handles GET /files/get/{filename}
// @Summary Fetch a sound
// @Description Streams the file, downloading third-party sounds into the store on first access.
// @Tags files
// @Param filename path string true "Full name, eg. air-horn.mp3"
// @Success 200
// @Failure 404 {object} httpx.ErrorResponse
// @Failure 500 {object} httpx.ErrorResponse
// @Router /files/get/{filename} [get]
func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	if filename == "" {
		httpx.JSONError(w, r, http.StatusNotFound, "NOT_FOUND", "File not found", nil)
		return
	}

	path, err := h.svc.Open(r.Context(), filename)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType(path))
	http.ServeFile(w, r, path)
}

// Upload handles POST /files/upload
// @Summary Upload a sound
// @Tags files
// @Accept multipart/form-data
// @Produce plain
// @Param upload formData file true "A .wav or .mp3 file"
// @Success 200 {string} string "ok"
// @Failure 400 {object} httpx.ErrorResponse
// @Router /files/upload [post]
func (h *HTTPHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	}
	file, header, err := r.FormFile("upload")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.JSONError(w, r, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE", "Upload too large", nil)
			return
		}
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "upload is required", []httpx.ErrorDetail{
			{Field: "upload", Message: "upload is required"},
		})
		return
	}
	defer file.Close()

	if _, err := h.svc.Upload(r.Context(), header.Filename, file); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.Text(w, http.StatusOK, "ok")
}

type AddFromURLRequest struct {
	URL  string `form:"url" validate:"required,url"`
	Name string `form:"name" validate:"required,max=200,sound_name"`
}

// AddFromURL handles POST /files/add-from-url
// @Summary Download a sound into the store
// @Tags files
// @Accept x-www-form-urlencoded
// @Produce plain
// @Param url formData string true "Source URL ending in .wav or .mp3"
// @Param name formData string true "Name to store the sound under, without extension"
// @Success 200 {string} string "ok"
// @Failure 400 {object} httpx.ErrorResponse
// @Failure 500 {object} httpx.ErrorResponse
// @Router /files/add-from-url [post]
func (h *HTTPHandler) AddFromURL(w http.ResponseWriter, r *http.Request) {
	req := AddFromURLRequest{
		URL:  r.FormValue("url"),
		Name: r.FormValue("name"),
	}
	if details := httpx.ValidateStruct(req); details != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid form", details)
		return
	}

	if _, err := h.svc.AddFromURL(r.Context(), req.URL, req.Name); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.Text(w, http.StatusOK, "ok")
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.JSONError(w, r, http.StatusNotFound, "NOT_FOUND", "File not found", nil)
	case errors.Is(err, naming.ErrUnsupportedExtension):
		httpx.JSONError(w, r, http.StatusBadRequest, "UNSUPPORTED_EXTENSION", err.Error(), nil)
	case errors.Is(err, naming.ErrInvalidInput), errors.Is(err, ErrInvalidFilename):
		httpx.JSONError(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error(), nil)
	case errors.Is(err, remote.ErrFetch):
		log.Error("Remote fetch failed", "err", err, "request_id", httpx.RequestIDFrom(r))
		httpx.JSONError(w, r, http.StatusInternalServerError, "REMOTE_FETCH_FAILED", err.Error(), nil)
	case errors.Is(err, ErrBuild):
		httpx.JSONError(w, r, http.StatusInternalServerError, "CATALOG_BUILD_FAILED", "Failed to build the sound catalog", nil)
	default:
		log.Error("Request failed", "err", err, "request_id", httpx.RequestIDFrom(r))
		httpx.JSONError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil)
	}
}

// baseURL is the scheme and host the client used to reach us.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host + "/"
}

func contentType(path string) string {
	if mt, err := mimetype.DetectFile(path); err == nil && !mt.Is("application/octet-stream") && !mt.Is("text/plain") {
		return mt.String()
	}
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
