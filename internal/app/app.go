// Package app builds the read-only startup state shared by every request.
package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/kartoza/home-energy-assistant/internal/applog"
	"github.com/kartoza/home-energy-assistant/internal/config"
	"github.com/kartoza/home-energy-assistant/internal/dataset"
	"github.com/kartoza/home-energy-assistant/internal/llm"
	"github.com/kartoza/home-energy-assistant/internal/ocr"
	"github.com/kartoza/home-energy-assistant/internal/recommend"
	"github.com/kartoza/home-energy-assistant/internal/summary"
)

// ErrNoModel is returned by Recommend when no model was trained
var ErrNoModel = errors.New("recommendation model not available")

// Context is the immutable application state built once at startup.
// Model is nil when training was skipped or failed recoverably.
type Context struct {
	Dataset *dataset.Dataset
	Scaler  *dataset.Scaler
	Fill    dataset.FillReport
	Summary string
	Model   *recommend.Model
}

// Build loads and prepares the dataset, renders the summary and trains
// the recommendation model. Dataset errors are fatal; model errors are
// logged and leave Model nil.
func Build(cfg *config.Config, fsys afero.Fs, logger *zap.Logger) (*Context, error) {
	logger = applog.OrNop(logger)

	start := time.Now()
	ds, err := dataset.Load(fsys, cfg.Data.Path, cfg.Data.Table)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	report, err := dataset.Prepare(ds)
	if err != nil {
		return nil, fmt.Errorf("prepare dataset %s: %w", ds.Source, err)
	}
	logFill(logger, report.Fill)

	c := &Context{
		Dataset: ds,
		Scaler:  report.Scaler,
		Fill:    report.Fill,
		Summary: summary.Generate(ds),
	}
	logger.Info("Dataset loaded",
		zap.String("source", ds.Source),
		zap.Int("rows", ds.Rows()),
		zap.Int("columns", len(ds.Columns())),
		zap.Int("filled", report.Fill.Filled()),
		zap.Duration("elapsed", time.Since(start)))

	if cfg.Model.Enabled {
		c.Model = loadOrTrain(cfg.Model, ds, logger)
	}
	return c, nil
}

// logFill reports leading gaps that were imputed and those left missing
// because the column had no observed value
func logFill(logger *zap.Logger, fill dataset.FillReport) {
	for _, f := range fill {
		if f.Imputed > 0 {
			logger.Warn("Leading missing values imputed",
				zap.String("column", f.Column),
				zap.Int("count", f.Imputed))
		}
		if left := f.Leading - f.Imputed; left > 0 {
			logger.Warn("Leading missing values left unfilled",
				zap.String("column", f.Column),
				zap.Int("count", left))
		}
	}
}

func loadOrTrain(cfg config.ModelConfig, ds *dataset.Dataset, logger *zap.Logger) *recommend.Model {
	if cfg.Reuse && cfg.Path != "" {
		if _, err := os.Stat(cfg.Path); err == nil {
			m, err := recommend.Load(cfg.Path)
			if err == nil {
				logger.Info("Recommendation model loaded", zap.String("path", cfg.Path))
				return m
			}
			logger.Warn("Could not load saved model, retraining", zap.String("path", cfg.Path), zap.Error(err))
		}
	}

	start := time.Now()
	m, err := recommend.Train(ds, recommend.Config{
		Trees:    cfg.Trees,
		MaxDepth: cfg.MaxDepth,
		MinLeaf:  cfg.MinLeaf,
		Seed:     cfg.Seed,
	})
	if err != nil {
		logger.Warn("Recommendation model not trained", zap.Error(err))
		return nil
	}
	info := m.Info()
	logger.Info("Recommendation model trained",
		zap.Any("trees", info["trees"]),
		zap.Any("samples", info["samples"]),
		zap.Duration("elapsed", time.Since(start)))

	if cfg.Path != "" {
		if err := m.Save(cfg.Path); err != nil {
			logger.Warn("Could not save model", zap.String("path", cfg.Path), zap.Error(err))
		}
	}
	return m
}

// HasModel reports whether a recommendation model is available
func (c *Context) HasModel() bool {
	return c.Model != nil && c.Model.IsTrained()
}

// Recommend predicts an action from raw, unscaled household features.
// Standardized columns are scaled with the startup scaler first.
func (c *Context) Recommend(features map[string]any) (*recommend.Prediction, error) {
	if !c.HasModel() {
		return nil, ErrNoModel
	}

	scaled := make(map[string]any, len(features))
	for k, v := range features {
		scaled[k] = v
		if c.Scaler == nil || c.Model.Categorical(k) {
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			continue
		}
		if s, handled := c.Scaler.Apply(k, f); handled {
			scaled[k] = s
		}
	}
	return c.Model.Predict(scaled)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

// NewExtractor builds the configured OCR engine wrapped in its cache
func NewExtractor(cfg config.OCRConfig) (ocr.Extractor, error) {
	var ext ocr.Extractor
	switch cfg.Engine {
	case "tesseract":
		ext = ocr.NewTesseract(cfg.Binary, cfg.Language, time.Duration(cfg.TimeoutSec)*time.Second)
	case "gosseract":
		g, err := ocr.NewGosseract(cfg.Language)
		if err != nil {
			return nil, err
		}
		ext = g
	case "none":
		return ocr.Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown ocr engine %q", cfg.Engine)
	}
	return ocr.NewCached(ext, cfg.CacheSize)
}

// NewInvoker builds the configured LLM provider behind a timeout and retry policy
func NewInvoker(cfg config.LLMConfig, logger *zap.Logger) (*llm.Invoker, error) {
	p, err := llm.NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return llm.NewInvoker(p, time.Duration(cfg.TimeoutSec)*time.Second, cfg.Retries, logger), nil
}
