// Package httpcors builds the go-chi/cors middleware for the observation
// surface's HTTP server (§6), configured from the CORS_* environment
// variables the teacher's test suite documents
// (test/unit/http/cors, test/integration/gateway/cors_test.go).
package httpcors

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/cors"
)

const (
	defaultMaxAge = 300
)

// FromEnvironment builds cors.Options from CORS_ALLOWED_ORIGINS,
// CORS_ALLOWED_METHODS, CORS_ALLOWED_HEADERS, CORS_ALLOW_CREDENTIALS,
// CORS_MAX_AGE, and CORS_EXPOSED_HEADERS, falling back to permissive
// read-only defaults suitable for a local observation dashboard.
func FromEnvironment() cors.Options {
	opts := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           defaultMaxAge,
	}

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		opts.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("CORS_ALLOWED_METHODS"); v != "" {
		opts.AllowedMethods = splitCSV(v)
	}
	if v := os.Getenv("CORS_ALLOWED_HEADERS"); v != "" {
		opts.AllowedHeaders = splitCSV(v)
	}
	if v := os.Getenv("CORS_EXPOSED_HEADERS"); v != "" {
		opts.ExposedHeaders = splitCSV(v)
	}
	if v := os.Getenv("CORS_ALLOW_CREDENTIALS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			opts.AllowCredentials = b
		}
	}
	if v := os.Getenv("CORS_MAX_AGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.MaxAge = n
		}
	}

	return opts
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Handler builds the go-chi middleware function from opts.
func Handler(opts cors.Options) func(http.Handler) http.Handler {
	return cors.Handler(opts)
}
