/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import "net/http"

// BlockedPaths answers requests to the matching paths with a bare 404 without calling the next handler.
// It is meant for scanner and CDN noise ("/cdn-cgi/*") and goes before the logging middleware.
func BlockedPaths(patterns []string) func(next http.Handler) http.Handler {
	matcher := NewPathMatcher(patterns)
	return func(next http.Handler) http.Handler {
		if matcher.Empty() {
			return next
		}
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if matcher.Match(r.URL.Path) {
				rw.WriteHeader(http.StatusNotFound)
				return
			}
			next.ServeHTTP(rw, r)
		})
	}
}
