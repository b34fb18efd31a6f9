package common

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// DefaultMaxBodyBytes bounds every JSON request body.
const DefaultMaxBodyBytes int64 = 64 << 10

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RespondJSON sends data wrapped in the standard envelope
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	WriteJSON(w, status, APIResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

// RespondError sends an error response
func RespondError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, APIResponse{
		Error: &ErrorInfo{Code: code, Message: message},
	})
}

// WriteJSON sends body as-is, without the envelope
func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// StandardErrorCodes defines common error codes
var StandardErrorCodes = struct {
	BadRequest      string
	Unauthorized    string
	Forbidden       string
	TooManyRequests string
}{
	BadRequest:      "BAD_REQUEST",
	Unauthorized:    "UNAUTHORIZED",
	Forbidden:       "FORBIDDEN",
	TooManyRequests: "TOO_MANY_REQUESTS",
}

// ParseJSONBody parses JSON request body with size limit. An empty body
// leaves v untouched.
func ParseJSONBody(r *http.Request, v interface{}, maxBytes int64) error {
	if r.Body == nil {
		return nil
	}
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
