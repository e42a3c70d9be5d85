// Package server provides the HTTP server for the videobooth API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

// UploadResponse is the HTTP response after a successful upload.
type UploadResponse struct {
	// Success is always true; failures use ErrorResponse.
	Success bool `json:"success"`
	// VideoID is the identifier portion of the stored filename.
	VideoID string `json:"videoId"`
	// DownloadURL is the absolute URL the video can be fetched from.
	DownloadURL string `json:"downloadUrl"`
	// Storage is the authoritative backend: "local", "ftp" or "s3".
	Storage string `json:"storage"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
