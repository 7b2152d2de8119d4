package main

import (
	"net/http"

	"soundserver/internal/catalog"
	"soundserver/internal/httpx"
	"soundserver/internal/web"
)

func newRouter(cfg config, cat *catalog.Catalog, files *catalog.HTTPHandler, limiter *httpx.RateLimitMiddleware) http.Handler {
	router := http.NewServeMux()

	router.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/static/index.html", http.StatusSeeOther)
	})
	router.Handle("GET /static/", web.Handler("/static/"))

	router.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.Text(w, http.StatusOK, "ok")
	})
	router.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if cat.BuiltAt().IsZero() {
			httpx.Text(w, http.StatusServiceUnavailable, "catalog not built")
			return
		}
		httpx.Text(w, http.StatusOK, "ready")
	})

	router.HandleFunc("GET /files", files.List)
	router.HandleFunc("GET /files/get/{filename}", files.Get)
	router.HandleFunc("GET /files/search", files.Search)
	router.HandleFunc("GET /files/lucky", files.Lucky)
	router.HandleFunc("POST /files/upload", files.Upload)
	router.HandleFunc("POST /files/add-from-url", files.AddFromURL)

	middlewares := []func(http.Handler) http.Handler{
		httpx.RequestIDMiddleware,
		httpx.AccessLogMiddleware,
		httpx.RecoveryMiddleware,
		httpx.SecurityHeadersMiddleware(cfg.EnableHSTS),
		httpx.CORSMiddleware(cfg.CORSOrigins),
	}
	if limiter != nil {
		middlewares = append(middlewares, limiter.Middleware)
	}
	middlewares = append(middlewares, httpx.RequestSizeLimitMiddleware(cfg.MaxUpload))

	return httpx.Chain(router, middlewares...)
}
