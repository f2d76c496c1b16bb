// pantry/testing/recorder.go
package testing

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

// Recorder runs requests against a handler in-process and carries cookies
// from one response to the next request, like a browser would.
type Recorder struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

// NewRecorder starts with no cookies.
func NewRecorder(t *testing.T, handler http.Handler) *Recorder {
	return &Recorder{t: t, handler: handler, cookies: make(map[string]*http.Cookie)}
}

// Get starts a GET request for path.
func (rec *Recorder) Get(path string) *Request { return rec.Request(http.MethodGet, path) }

// Put starts a PUT request for path.
func (rec *Recorder) Put(path string) *Request { return rec.Request(http.MethodPut, path) }

// Post starts a POST request for path.
func (rec *Recorder) Post(path string) *Request { return rec.Request(http.MethodPost, path) }

// Delete starts a DELETE request for path.
func (rec *Recorder) Delete(path string) *Request { return rec.Request(http.MethodDelete, path) }

// Request starts a request with any method. Nothing is sent until Do.
func (rec *Recorder) Request(method, path string) *Request {
	return &Request{rec: rec, method: method, path: path, header: make(http.Header)}
}

// Request is a request under construction.
type Request struct {
	rec    *Recorder
	method string
	path   string
	header http.Header
	body   io.Reader
}

// Header sets one request header.
func (r *Request) Header(key, value string) *Request {
	r.header.Set(key, value)
	return r
}

// Bearer sets an Authorization: Bearer header.
func (r *Request) Bearer(token string) *Request {
	return r.Header("Authorization", "Bearer "+token)
}

// JSON sends v as the JSON body with a matching Content-Type.
func (r *Request) JSON(v any) *Request {
	r.body = bytes.NewReader(MustJSON(r.rec.t, v))
	return r.Header("Content-Type", "application/json")
}

// BodyString sends s as the body without setting Content-Type.
func (r *Request) BodyString(s string) *Request {
	r.body = strings.NewReader(s)
	return r
}

// Do runs the request and records any cookies set by the response.
func (r *Request) Do() *Response {
	r.rec.t.Helper()

	req := httptest.NewRequest(r.method, r.path, r.body)
	for k, v := range r.header {
		req.Header[k] = v
	}
	for _, c := range r.rec.cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	r.rec.handler.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	for _, c := range res.Cookies() {
		if c.MaxAge < 0 {
			delete(r.rec.cookies, c.Name)
		} else {
			r.rec.cookies[c.Name] = c
		}
	}
	return &Response{Response: res, Body: body, t: r.rec.t}
}

// Response wraps the recorded result with assertions.
type Response struct {
	*http.Response
	Body []byte
	t    *testing.T
}

// Status reports an error unless the response has code. It does not
// stop the test, so later checks still run.
func (r *Response) Status(code int) *Response {
	r.t.Helper()
	if r.StatusCode != code {
		r.t.Errorf("status = %d, want %d\nbody: %s", r.StatusCode, code, r.Body)
	}
	return r
}

// JSON decodes the body into v or stops the test.
func (r *Response) JSON(v any) *Response {
	r.t.Helper()
	if err := json.Unmarshal(r.Body, v); err != nil {
		r.t.Fatalf("decode JSON: %v\nbody: %s", err, r.Body)
	}
	return r
}

// JSONPath returns the value at a dot-separated path such as
// "availableSchools.0.id", failing the test when it does not exist.
func (r *Response) JSONPath(path string) any {
	r.t.Helper()
	var cur any
	if err := json.Unmarshal(r.Body, &cur); err != nil {
		r.t.Fatalf("decode JSON: %v", err)
	}
	for _, part := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[part]
			if !ok {
				r.t.Fatalf("path %q: key %q not found\nbody: %s", path, part, r.Body)
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(v) {
				r.t.Fatalf("path %q: bad index %q", path, part)
			}
			cur = v[i]
		default:
			r.t.Fatalf("path %q: cannot descend into %T at %q", path, cur, part)
		}
	}
	return cur
}

// String returns the body as text.
func (r *Response) String() string { return string(r.Body) }
