// Package models holds the JSON envelope types shared by the admin HTTP
// surface's handlers.
package models

// APIResponse is the envelope every admin endpoint responds with.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}
