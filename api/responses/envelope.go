package responses

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public error body. RequestID is what the desk quotes when
// reporting a problem, and Retryable tells a client it may resend the same
// request with the same Idempotency-Key.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
