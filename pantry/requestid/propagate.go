// pantry/requestid/propagate.go
package requestid

import "net/http"

// Transport copies the request id from the outgoing request's context onto
// its headers so backend logs can be correlated.
type Transport struct {
	Base http.RoundTripper
}

// RoundTrip sets the request id header unless the caller already did,
// then delegates to Base or http.DefaultTransport.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(DefaultHeader) == "" {
		if id := Get(req.Context()); id != "" {
			req = req.Clone(req.Context())
			req.Header.Set(DefaultHeader, id)
		}
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
