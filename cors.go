package oasql

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	AllowOrigins     []string // "*" allows any origin
	AllowHeaders     []string // default: Content-Type, X-Request-ID
	ExposeHeaders    []string // default: X-Request-ID
	AllowCredentials bool
	MaxAge           int // seconds

	// Methods lists the methods allowed for a path in preflight responses.
	// Router.AllowedMethods derives them from the contract.
	Methods func(path string) []string
}

// CORS returns middleware that handles Cross-Origin Resource Sharing.
// Requests from origins that are not allowed pass through without CORS
// headers. Preflight requests are answered directly.
func CORS(cfg CORSConfig) Middleware {
	if len(cfg.AllowHeaders) == 0 {
		cfg.AllowHeaders = []string{"Content-Type", "X-Request-ID"}
	}
	if cfg.ExposeHeaders == nil {
		cfg.ExposeHeaders = []string{"X-Request-ID"}
	}
	anyOrigin := slices.Contains(cfg.AllowOrigins, "*")
	headers := strings.Join(cfg.AllowHeaders, ", ")
	expose := strings.Join(cfg.ExposeHeaders, ", ")
	maxAge := ""
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(cfg.MaxAge)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")
			if origin == "" || (!anyOrigin && !slices.Contains(cfg.AllowOrigins, origin)) {
				next.ServeHTTP(w, r)
				return
			}

			if anyOrigin && !cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			if cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			if expose != "" {
				w.Header().Set("Access-Control-Expose-Headers", expose)
			}

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				next.ServeHTTP(w, r)
				return
			}

			methods := []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}
			if cfg.Methods != nil {
				methods = cfg.Methods(r.URL.EscapedPath())
			}
			if len(methods) == 0 {
				writeErrorResponse(w, r, &NotFoundError{Path: r.URL.Path})
				return
			}
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
			w.Header().Set("Access-Control-Allow-Headers", headers)
			if maxAge != "" {
				w.Header().Set("Access-Control-Max-Age", maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

// AllowedMethods returns the methods the contract defines for a request
// path, or nil when no operation matches it.
func (r *Router) AllowedMethods(escapedPath string) []string {
	_, _, err := r.dispatch.match("", escapedPath)
	var mna *MethodNotAllowedError
	if errors.As(err, &mna) {
		return mna.Allow
	}
	return nil
}
