// middleware/contenttype.go
package middleware

import (
	"mime"
	"net/http"
	"strings"

	"github.com/dalemusser/schoolctx/pantry/errors"
)

// RequireJSON rejects requests that carry a body without a JSON
// Content-Type ("application/json" or any "+json" type) with 415.
// Bodyless requests such as DELETE pass through.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength == 0 && r.Header.Get("Content-Type") == "" {
			next.ServeHTTP(w, r)
			return
		}
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || (mt != "application/json" && !strings.HasSuffix(mt, "+json")) {
			errors.Write(w, errors.New("unsupported_media_type",
				"Content-Type must be application/json", http.StatusUnsupportedMediaType))
			return
		}
		next.ServeHTTP(w, r)
	})
}
