// Package httpx maps service results and errors onto HTTP responses.
// Error payloads follow RFC 7807 problem details.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrMissingIdempotencyKey indicates a mutating request without the
// Idempotency-Key header.
var ErrMissingIdempotencyKey = errors.New("Idempotency-Key header required")

// ProblemDetail is an RFC 7807 problem body.
type ProblemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem writes an RFC 7807 response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// IdempotencyKey extracts the mandatory Idempotency-Key header. State
// creating and transitioning endpoints refuse requests without one so a
// retried POST can always be recognized as a replay.
func IdempotencyKey(r *http.Request) (string, error) {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		return "", ErrMissingIdempotencyKey
	}
	return key, nil
}

// DecodeJSON reads the request body into target. Unknown fields and
// bodies over 1 MiB are rejected.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
