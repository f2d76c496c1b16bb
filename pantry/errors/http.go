// pantry/errors/http.go
package errors

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Response is the JSON envelope for error bodies.
type Response struct {
	Error *Error `json:"error"`
}

// Write renders err with its status code.
func Write(w http.ResponseWriter, err error) {
	writeError(w, From(err))
}

// WriteWithLogger is Write plus an error log for 5xx responses.
func WriteWithLogger(w http.ResponseWriter, err error, logger *zap.Logger) {
	e := From(err)
	if e.HTTPStatus() >= 500 && logger != nil {
		logger.Error("request failed",
			zap.String("code", e.Code),
			zap.String("message", e.Message),
			zap.Int("status", e.HTTPStatus()),
			zap.Error(e.Err),
		)
	}
	writeError(w, e)
}

func writeError(w http.ResponseWriter, e *Error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(e.HTTPStatus())
	_ = json.NewEncoder(w).Encode(Response{Error: e})
}

// HandlerFunc is an http handler that reports failures by returning them.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Handle adapts h, writing any returned error through WriteWithLogger.
func Handle(h HandlerFunc, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			WriteWithLogger(w, err, logger)
		}
	}
}
