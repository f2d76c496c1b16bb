// middleware/security.go
package middleware

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/schoolctx/config"
)

// SecurityHeadersOptions lists the response headers set on every API
// response. Empty strings (or zero HSTSMaxAge) disable a header.
type SecurityHeadersOptions struct {
	XFrameOptions         string
	XContentTypeOptions   string
	ReferrerPolicy        string
	ContentSecurityPolicy string

	// HSTS is only sent on TLS requests.
	HSTSMaxAge            int
	HSTSIncludeSubDomains bool
}

// APISecurityHeadersOptions suits a JSON API that is never framed or
// rendered as a document.
func APISecurityHeadersOptions() SecurityHeadersOptions {
	return SecurityHeadersOptions{
		XFrameOptions:         "DENY",
		XContentTypeOptions:   "nosniff",
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		HSTSMaxAge:            31536000,
		HSTSIncludeSubDomains: true,
	}
}

// SecurityHeaders sets the headers in opts on every response before the
// handler runs, so handlers may still override them.
func SecurityHeaders(opts SecurityHeadersOptions) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			setIf(h, "X-Frame-Options", opts.XFrameOptions)
			setIf(h, "X-Content-Type-Options", opts.XContentTypeOptions)
			setIf(h, "Referrer-Policy", opts.ReferrerPolicy)
			setIf(h, "Content-Security-Policy", opts.ContentSecurityPolicy)

			if opts.HSTSMaxAge > 0 && r.TLS != nil {
				hsts := "max-age=" + strconv.Itoa(opts.HSTSMaxAge)
				if opts.HSTSIncludeSubDomains {
					hsts += "; includeSubDomains"
				}
				h.Set("Strict-Transport-Security", hsts)
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeadersFromConfig applies APISecurityHeadersOptions unless
// enable_security_headers is false.
func SecurityHeadersFromConfig(coreCfg *config.CoreConfig) func(next http.Handler) http.Handler {
	if coreCfg == nil || !coreCfg.EnableSecurityHeaders {
		return func(next http.Handler) http.Handler { return next }
	}
	return SecurityHeaders(APISecurityHeadersOptions())
}

func setIf(h http.Header, key, value string) {
	if value != "" {
		h.Set(key, value)
	}
}
