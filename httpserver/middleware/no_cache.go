/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import "net/http"

// NoCache marks every response as not cacheable. Queue positions and statuses change every second,
// so neither browsers nor intermediate proxies may keep them.
func NoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		h := rw.Header()
		h.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		next.ServeHTTP(rw, r)
	})
}
