package models

// ValidationErrorResponse is the 400 body for rejected submissions.
type ValidationErrorResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// ErrorResponse is the generic error body (401/403/404/409/500).
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
