// Package llm provides typed representations of chat completion API requests
// and responses as they travel over the wire.
package llm

// ErrorResponse represents an OpenAI-style error body returned alongside a
// non-200 status.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// APIError is the nested error object of an ErrorResponse.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    any    `json:"code,omitempty"`
}
