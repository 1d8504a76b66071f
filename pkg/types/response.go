package types

type SuccessEnvelope struct {
	Data    any      `json:"data"`
	Notices []Notice `json:"notices,omitempty"`
}

// Notice is a non-fatal problem reported next to a successful result.
type Notice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
