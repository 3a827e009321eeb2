// Package chat answers household energy questions from an optional bill
// image, the dataset summary and the caller's conversation history.
package chat

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kartoza/home-energy-assistant/internal/applog"
	"github.com/kartoza/home-energy-assistant/internal/ocr"
	"github.com/kartoza/home-energy-assistant/internal/prompt"
)

// ErrLLM wraps any failure from the language model
var ErrLLM = errors.New("language model request failed")

// Generator produces the model's answer for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Request is one question from the client
type Request struct {
	Question string
	Context  string
	Image    []byte
	HasImage bool
}

// Response is the answer plus the extended conversation
type Response struct {
	Response string `json:"response"`
	Context  string `json:"context"`
}

// Service runs the OCR, prompt and LLM steps for each question.
// MaxPixels bounds uploaded images; zero means ocr.DefaultMaxPixels.
type Service struct {
	MaxPixels int

	summary  string
	ocr      ocr.Extractor
	llm      Generator
	composer prompt.Composer
	logger   *zap.Logger
}

// NewService creates a chat service over a precomputed data summary
func NewService(summary string, extractor ocr.Extractor, gen Generator, composer prompt.Composer, logger *zap.Logger) *Service {
	logger = applog.OrNop(logger)
	if extractor == nil {
		extractor = ocr.Disabled{}
	}
	return &Service{
		summary:  summary,
		ocr:      extractor,
		llm:      gen,
		composer: composer,
		logger:   logger,
	}
}

// Answer runs OCR, builds the prompt, asks the model and appends the
// exchange to the conversation
func (s *Service) Answer(ctx context.Context, req Request) (*Response, error) {
	imageText, err := ocr.ImageText(ctx, s.ocr, req.Image, req.HasImage, s.MaxPixels)
	if err != nil {
		return nil, err
	}
	if req.HasImage {
		s.logger.Debug("Extracted image text", zap.Int("chars", len(imageText)))
	}

	p := s.composer.Compose(prompt.Fields{
		ImageData: imageText,
		Documents: s.summary,
		Context:   req.Context,
		Question:  req.Question,
	})

	answer, err := s.llm.Generate(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLLM, err)
	}

	return &Response{
		Response: answer,
		Context:  UpdateContext(req.Context, req.Question, answer),
	}, nil
}

// UpdateContext appends one question and answer to a conversation
func UpdateContext(context, question, answer string) string {
	return context + "\nUser: " + question + "\nAI: " + answer
}
