// server/redirect.go
package server

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

// redirectHandler sends every request to the same host and path over HTTPS.
// Hosts and URIs that could inject headers or redirect elsewhere are refused.
func redirectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uri := r.URL.RequestURI()
		if !isValidHost(r.Host) || hasControlChars(uri) {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, "https://"+r.Host+uri, http.StatusMovedPermanently)
	})
}

func isValidHost(host string) bool {
	if host == "" || strings.Contains(host, "://") || strings.HasPrefix(host, "/") {
		return false
	}
	name := host
	if h, port, err := net.SplitHostPort(host); err == nil {
		if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
			return false
		}
		name = h
	}
	if name == "" {
		return false
	}
	// SplitHostPort strips the brackets, so check the raw host.
	if strings.HasPrefix(host, "[") {
		ip := name
		if strings.HasPrefix(ip, "[") {
			if !strings.HasSuffix(ip, "]") {
				return false
			}
			ip = ip[1 : len(ip)-1]
		}
		if net.ParseIP(ip) == nil {
			return false
		}
	}
	return !hasControlChars(name) && !strings.ContainsAny(name, " \t/\\@")
}

func hasControlChars(s string) bool {
	for _, c := range s {
		if c < 0x20 || c == 0x7f {
			return true
		}
	}
	return false
}
