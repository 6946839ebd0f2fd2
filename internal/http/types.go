package http

// AnswerRequest is the request body for POST /api/v1/answer.
type AnswerRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Entries  int    `json:"entries"`
	Variants int    `json:"variants"`
	Version  string `json:"version,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}
