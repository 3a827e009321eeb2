package models

// ChatResponse is the answer to a chat request
type ChatResponse struct {
	Response string `json:"response"`
	Context  string `json:"context"`
}

// RecommendResponse contains the forest's suggested action
type RecommendResponse struct {
	Action        string             `json:"action"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// DatasetInfo describes the dataset loaded at startup
type DatasetInfo struct {
	Source  string   `json:"source"`
	Rows    int      `json:"rows"`
	Columns []string `json:"columns"`
	Filled  int      `json:"filled"`
}

// ModelInfo reports whether the recommendation model is available
type ModelInfo struct {
	Available bool                   `json:"available"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// InfoResponse contains server information
type InfoResponse struct {
	Version string      `json:"version"`
	Dataset DatasetInfo `json:"dataset"`
	Model   ModelInfo   `json:"model"`
	LLM     string      `json:"llm"`
	OCR     string      `json:"ocr"`
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
