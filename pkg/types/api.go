package types

// LoadRequest is the body of POST /load. Either Model (a registry id) or
// ModelPath+TokenizerPath must be provided.
type LoadRequest struct {
	// Registry id of a discovered model. Takes precedence over explicit paths.
	// example: smollm2-135m-xnnpack.pte
	Model string `json:"model,omitempty" example:"smollm2-135m-xnnpack.pte"`
	// Path to the weights file.
	// example: /home/user/models/smollm2-135m-xnnpack.pte
	ModelPath string `json:"model_path,omitempty" validate:"required_without=Model" example:"/home/user/models/smollm2-135m-xnnpack.pte"`
	// Path to the tokenizer file.
	// example: /home/user/models/smollm2_135m_tokenizer/tokenizer.json
	TokenizerPath string `json:"tokenizer_path,omitempty" validate:"required_without=Model" example:"/home/user/models/smollm2_135m_tokenizer/tokenizer.json"`
	// Tokenizer kind; defaults to huggingface.
	// example: huggingface
	TokenizerType TokenizerType `json:"tokenizer_type,omitempty" validate:"omitempty,oneof=huggingface sentencepiece" example:"huggingface"`
}

// LoadResponse is returned by POST /load.
type LoadResponse struct {
	// Handle id of the loaded model.
	// example: 0b6f8a8e-4c1e-4c55-9a53-0a3f0e1b9f3d
	Handle string `json:"handle" example:"0b6f8a8e-4c1e-4c55-9a53-0a3f0e1b9f3d"`
	// Lifecycle state of the handle.
	// example: loaded
	State string `json:"state" example:"loaded"`
}

// LoadedResponse is returned by GET /loaded.
type LoadedResponse struct {
	// True when a model is loaded and the engine confirms it.
	// example: true
	Loaded bool `json:"loaded" example:"true"`
}

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	// Prompt text. Empty prompts are passed through to the engine.
	// example: Hey everyone,
	Prompt string `json:"prompt" example:"Hey everyone,"`
	GenerationOptions
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// HandleStatus summarizes a model handle for /status.
type HandleStatus struct {
	// Handle id.
	// example: 0b6f8a8e-4c1e-4c55-9a53-0a3f0e1b9f3d
	ID string `json:"id" example:"0b6f8a8e-4c1e-4c55-9a53-0a3f0e1b9f3d"`
	// Weights file path the handle was loaded from.
	ModelPath string `json:"model_path"`
	// Tokenizer kind.
	// example: huggingface
	TokenizerType string `json:"tokenizer_type" example:"huggingface"`
	// Lifecycle state (unloaded, loading, loaded, load_failed).
	// example: loaded
	State string `json:"state" example:"loaded"`
	// Id of the active generation session, empty when idle.
	ActiveSession string `json:"active_session,omitempty"`
	// Tokens streamed so far by the active session.
	// example: 12
	ActiveTokens int `json:"active_tokens" example:"12"`
	// Last time the handle started a generation (unix seconds).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Handles owned by the runner.
	Handles []HandleStatus `json:"handles"`
	// Event subscriptions currently registered on the engine event channel.
	// example: 3
	Subscriptions int `json:"subscriptions" example:"3"`
	// Total model loads attempted.
	// example: 1
	LoadsTotal uint64 `json:"loads_total" example:"1"`
	// Total generations started.
	// example: 4
	GenerationsTotal uint64 `json:"generations_total" example:"4"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Last load or generation error observed by the runner (if any).
	LastError string `json:"last_error,omitempty"`
}

// TokenLine is one streamed token on POST /generate.
type TokenLine struct {
	// example: Hello
	Token string `json:"token" example:"Hello"`
}

// DoneLine is the final line of a successful POST /generate stream.
type DoneLine struct {
	// example: true
	Done bool `json:"done" example:"true"`
	// Full generated text: the engine's direct result, or the streamed tokens joined.
	Content string `json:"content"`
	// Engine-reported statistics, passed through opaquely.
	Stats map[string]any `json:"stats,omitempty"`
}

// ErrorLine terminates a POST /generate stream that failed after it started.
type ErrorLine struct {
	// example: generation failed: kv cache full
	Error string `json:"error" example:"generation failed: kv cache full"`
}
