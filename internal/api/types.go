package api

// GenerateRequest is the request payload for an Ollama-style /api/generate
// endpoint. Stream is always false: the engine consumes whole responses.
type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// GenerateResponse is the non-streaming response payload. Fields beyond the
// generated text are ignored.
type GenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// ErrorResponse is the error payload shape on non-200 answers.
type ErrorResponse struct {
	Error string `json:"error"`
}
