/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/vasayxtx/go-glob"
)

const (
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
)

// RoutePatternGetterFunc returns the route pattern (e.g. "/requests/{id}") the request was matched to.
type RoutePatternGetterFunc func(r *http.Request) string

// WrapResponseWriter is a proxy around http.ResponseWriter that remembers the status and the number of written bytes.
type WrapResponseWriter = chimw.WrapResponseWriter

// WrapResponseWriterIfNeeded wraps rw unless it is already wrapped.
func WrapResponseWriterIfNeeded(rw http.ResponseWriter, protoMajor int) WrapResponseWriter {
	if wrw, ok := rw.(WrapResponseWriter); ok {
		return wrw
	}
	return chimw.NewWrapResponseWriter(rw, protoMajor)
}

// responseStatus returns the written status; handlers that never called WriteHeader answered 200.
func responseStatus(wrw WrapResponseWriter) int {
	if status := wrw.Status(); status != 0 {
		return status
	}
	return http.StatusOK
}

// GetClientIP returns the address of the client. Proxy headers take precedence over the peer address.
func GetClientIP(r *http.Request) string {
	if originAddr := getOriginAddr(r); originAddr != "" {
		return originAddr
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func getOriginAddr(r *http.Request) string {
	if forwardFor := r.Header.Get(headerForwardedFor); forwardFor != "" {
		if first := strings.IndexByte(forwardFor, ','); first != -1 {
			forwardFor = forwardFor[:first]
		}
		return strings.TrimSpace(forwardFor)
	}
	return strings.TrimSpace(r.Header.Get(headerRealIP))
}

// PathMatcher matches URL paths against a list of glob patterns ("/cdn-cgi/*").
type PathMatcher struct {
	exact    map[string]struct{}
	patterns []func(string) bool
}

// NewPathMatcher compiles patterns. Patterns without wildcards are compared as is.
func NewPathMatcher(patterns []string) *PathMatcher {
	m := &PathMatcher{exact: make(map[string]struct{})}
	for _, p := range patterns {
		if strings.ContainsRune(p, '*') {
			m.patterns = append(m.patterns, glob.Compile(p))
			continue
		}
		m.exact[p] = struct{}{}
	}
	return m
}

// Match reports whether the path matches any of the patterns.
func (m *PathMatcher) Match(path string) bool {
	if m == nil {
		return false
	}
	if _, ok := m.exact[path]; ok {
		return true
	}
	for _, match := range m.patterns {
		if match(path) {
			return true
		}
	}
	return false
}

// Empty reports whether there are no patterns.
func (m *PathMatcher) Empty() bool {
	return m == nil || (len(m.exact) == 0 && len(m.patterns) == 0)
}
