// internal/web/router.go
package web

import (
	"bookshare/internal/apierror"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the workflow API under /api and hands every other path
// to fallback, normally a proxy to the book-sharing API.
func NewRouter(h *Handler, auth Authenticator, fallback http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		h.Routes(r, auth)
	})

	if fallback != nil {
		r.Handle("/*", fallback)
	}
	return r
}

// NewProxy forwards requests unchanged to target, keeping the caller's
// cookies and Authorization header.
func NewProxy(target *url.URL, transport http.RoundTripper) *httputil.ReverseProxy {
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport: transport,
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		writeDetail(w, http.StatusBadGateway, apierror.GenericReason)
	}
	return proxy
}
