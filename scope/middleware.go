package scope

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/xraph/strata"
)

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	rejectMissing     bool
	issueCorrelation  bool
	skipTenancyChecks func(*http.Request) bool
}

// RejectMissing makes the middleware answer 400 when a required hierarchy
// header is absent.
func RejectMissing() MiddlewareOption {
	return func(c *middlewareConfig) { c.rejectMissing = true }
}

// IssueCorrelationID generates a UUIDv7 correlation id when the request has
// none, and echoes it on the response.
func IssueCorrelationID() MiddlewareOption {
	return func(c *middlewareConfig) { c.issueCorrelation = true }
}

// Public exempts matching requests from RejectMissing, e.g. health checks.
func Public(match func(*http.Request) bool) MiddlewareOption {
	return func(c *middlewareConfig) { c.skipTenancyChecks = match }
}

// Middleware copies the configured hierarchy, user and correlation headers
// into the request context under their lookup keys. In regular mode only the
// audit headers are read.
func Middleware(cfg *strata.Config, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	mc := middlewareConfig{}
	for _, opt := range opts {
		opt(&mc)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			vals := make(Values, len(cfg.Levels())+2)

			for _, level := range cfg.Levels() {
				v := r.Header.Get(level.Header)
				if v == "" {
					if level.Required && mc.rejectMissing && !mc.public(r) {
						http.Error(w, fmt.Sprintf("missing required header %s", level.Header), http.StatusBadRequest)
						return
					}
					continue
				}
				vals[level.Key()] = v
			}

			if v := r.Header.Get(cfg.Audit.UserIDHeader); v != "" {
				vals[cfg.Audit.UserIDKey()] = v
			}

			correlation := r.Header.Get(cfg.Audit.CorrelationIDHeader)
			if correlation == "" && mc.issueCorrelation {
				if u, err := uuid.NewV7(); err == nil {
					correlation = u.String()
				}
			}
			if correlation != "" {
				vals[cfg.Audit.CorrelationIDKey()] = correlation
				if mc.issueCorrelation {
					w.Header().Set(cfg.Audit.CorrelationIDHeader, correlation)
				}
			}

			next.ServeHTTP(w, r.WithContext(WithValues(r.Context(), vals)))
		})
	}
}

func (c middlewareConfig) public(r *http.Request) bool {
	return c.skipTenancyChecks != nil && c.skipTenancyChecks(r)
}
