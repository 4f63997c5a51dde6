package api

import (
	"time"
)

// ActionResponse is returned by the scan action endpoints
type ActionResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// newActionResponse builds a success response for an action endpoint
func newActionResponse(message string) ActionResponse {
	return ActionResponse{
		Success:   true,
		Message:   message,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}
