package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAI uses the chat completions API of OpenAI or a compatible server
type OpenAI struct {
	client  *openai.Client
	baseURL string
	model   string
	opts    Options
}

// NewOpenAI creates a client. An empty baseURL targets api.openai.com.
func NewOpenAI(apiKey, baseURL, model string, opts Options) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if opts.HTTPTimeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: opts.HTTPTimeout}
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(cfg),
		baseURL: cfg.BaseURL,
		model:   model,
		opts:    opts,
	}
}

var _ Provider = (*OpenAI)(nil)

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: o.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   o.opts.MaxTokens,
			Temperature: float32(o.opts.Temperature),
		},
	)
	if err != nil {
		return "", o.wrapError(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return "", &EmptyResponseError{Provider: o.Name()}
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAI) wrapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		e := &APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
		if code, ok := apiErr.Code.(string); ok {
			e.Code = code
		}
		return classify(e, o.model)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		e := &APIError{StatusCode: reqErr.HTTPStatusCode}
		if reqErr.Err != nil {
			e.Message = reqErr.Err.Error()
		}
		return classify(e, o.model)
	}

	return &UnreachableError{Host: o.baseURL, Err: err}
}
