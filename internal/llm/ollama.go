package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Ollama talks to a local Ollama runtime over /api/generate
type Ollama struct {
	httpClient *http.Client
	host       string
	model      string
	opts       Options
}

// NewOllama creates a client for host (e.g. http://127.0.0.1:11434)
func NewOllama(host, model string, opts Options) *Ollama {
	if host == "" {
		host = "http://127.0.0.1:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	return &Ollama{
		httpClient: &http.Client{Timeout: opts.HTTPTimeout},
		host:       strings.TrimRight(host, "/"),
		model:      model,
		opts:       opts,
	}
}

var _ Provider = (*Ollama)(nil)

func (o *Ollama) Name() string { return "ollama" }

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	req := ollamaGenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: false,
	}
	if o.opts.Temperature > 0 || o.opts.MaxTokens > 0 {
		req.Options = map[string]any{}
		if o.opts.Temperature > 0 {
			req.Options["temperature"] = o.opts.Temperature
		}
		if o.opts.MaxTokens > 0 {
			req.Options["num_predict"] = o.opts.MaxTokens
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &UnreachableError{Host: o.host, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		var raw map[string]any
		_ = json.Unmarshal(body, &raw)
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if msg, ok := raw["error"].(string); ok {
			apiErr.Message = msg
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return "", classify(apiErr, o.model)
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.Response, nil
}
