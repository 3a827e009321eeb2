package recommend

import (
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kartoza/home-energy-assistant/internal/dataset"
)

// FeatureColumns are the model inputs, in order
var FeatureColumns = []string{"housearea", "num_people", "num_ac_units", "num_appliances", "season"}

// TargetColumn is the label the model learns
const TargetColumn = "recommended_action"

var (
	ErrMissingTarget  = errors.New("target column not found")
	ErrMissingFeature = errors.New("feature column not found")
	ErrNoTrainingRows = errors.New("no complete training rows")
	ErrInvalidFeature = errors.New("invalid feature value")
	ErrNotTrained     = errors.New("model is not trained")
)

// Config holds forest hyperparameters
type Config struct {
	Trees       int
	MaxDepth    int // 0 means unlimited
	MinLeaf     int
	MaxFeatures int // 0 means sqrt(features)
	Seed        int64
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Trees:   100,
		MinLeaf: 1,
	}
}

// Prediction is the forest's answer for one household
type Prediction struct {
	Action        string             `json:"action"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// Model is a random forest classifier over household features
type Model struct {
	features []string
	// categorical features map value -> ordinal; numeric features have no entry
	encodings map[string]map[string]float64
	classes   []string
	trees     []*Node

	cfg     Config
	samples int
	trained bool
	mu      sync.RWMutex
}

// Train fits a forest on the dataset's feature and label columns
func Train(ds *dataset.Dataset, cfg Config) (*Model, error) {
	if !ds.HasColumn(TargetColumn) {
		return nil, fmt.Errorf("%w: %s", ErrMissingTarget, TargetColumn)
	}
	for _, f := range FeatureColumns {
		if !ds.HasColumn(f) {
			return nil, fmt.Errorf("%w: %s", ErrMissingFeature, f)
		}
	}
	if cfg.Trees <= 0 {
		cfg.Trees = DefaultConfig().Trees
	}

	m := &Model{
		features:  append([]string(nil), FeatureColumns...),
		encodings: make(map[string]map[string]float64),
		cfg:       cfg,
	}

	rows := ds.Rows()
	cols := make([][]float64, len(m.features))
	for j, f := range m.features {
		col, err := m.encodeColumn(ds, f)
		if err != nil {
			return nil, err
		}
		cols[j] = col
	}

	labels, missing, err := ds.Values(TargetColumn)
	if err != nil {
		return nil, err
	}
	classIndex := make(map[string]int)
	for i, l := range labels {
		if !missing[i] {
			classIndex[l] = 0
		}
	}
	for l := range classIndex {
		m.classes = append(m.classes, l)
	}
	sort.Strings(m.classes)
	for i, l := range m.classes {
		classIndex[l] = i
	}

	var x [][]float64
	var y []int
	for i := 0; i < rows; i++ {
		if missing[i] {
			continue
		}
		row := make([]float64, len(cols))
		complete := true
		for j := range cols {
			row[j] = cols[j][i]
			if math.IsNaN(row[j]) {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		x = append(x, row)
		y = append(y, classIndex[labels[i]])
	}
	if len(x) == 0 {
		return nil, ErrNoTrainingRows
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	m.trees = growForest(x, y, len(m.classes), cfg, rand.New(rand.NewSource(seed)))
	m.samples = len(x)
	m.trained = true
	return m, nil
}

func (m *Model) encodeColumn(ds *dataset.Dataset, name string) ([]float64, error) {
	if ds.IsNumeric(name) {
		return ds.Float(name)
	}

	vals, missing, err := ds.Values(name)
	if err != nil {
		return nil, err
	}
	distinct := make(map[string]struct{})
	for i, v := range vals {
		if !missing[i] {
			distinct[v] = struct{}{}
		}
	}
	keys := make([]string, 0, len(distinct))
	for k := range distinct {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	enc := make(map[string]float64, len(keys))
	for i, k := range keys {
		enc[k] = float64(i)
	}
	m.encodings[name] = enc

	out := make([]float64, len(vals))
	for i, v := range vals {
		if missing[i] {
			out[i] = math.NaN()
			continue
		}
		out[i] = enc[v]
	}
	return out, nil
}

// Features returns the input columns the model expects
func (m *Model) Features() []string {
	return append([]string(nil), m.features...)
}

// Categorical reports whether a feature was ordinally encoded from text
func (m *Model) Categorical(feature string) bool {
	_, ok := m.encodings[feature]
	return ok
}

// Predict classifies one household. Every feature must be present.
func (m *Model) Predict(features map[string]any) (*Prediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.trained {
		return nil, ErrNotTrained
	}

	x := make([]float64, len(m.features))
	for j, f := range m.features {
		raw, ok := features[f]
		if !ok {
			return nil, fmt.Errorf("%w: %s is required", ErrInvalidFeature, f)
		}
		v, err := m.encodeValue(f, raw)
		if err != nil {
			return nil, err
		}
		x[j] = v
	}

	probs := vote(m.trees, x, len(m.classes))
	p := &Prediction{
		Action:        m.classes[argmax(probs)],
		Probabilities: make(map[string]float64, len(m.classes)),
	}
	for i, c := range m.classes {
		p.Probabilities[c] = probs[i]
	}
	return p, nil
}

func (m *Model) encodeValue(feature string, raw any) (float64, error) {
	if enc, ok := m.encodings[feature]; ok {
		s := strings.TrimSpace(fmt.Sprint(raw))
		v, ok := enc[s]
		if !ok {
			return 0, fmt.Errorf("%w: unknown %s %q", ErrInvalidFeature, feature, s)
		}
		return v, nil
	}

	var v float64
	switch t := raw.(type) {
	case float64:
		v = t
	case float32:
		v = float64(t)
	case int:
		v = float64(t)
	case int64:
		v = float64(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be numeric", ErrInvalidFeature, feature)
		}
		v = f
	default:
		return 0, fmt.Errorf("%w: %s has unsupported type %T", ErrInvalidFeature, feature, raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s is not finite", ErrInvalidFeature, feature)
	}
	return v, nil
}

// IsTrained returns whether the model has been trained
func (m *Model) IsTrained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained
}

// Info returns the model configuration and training summary
func (m *Model) Info() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]interface{}{
		"trees":     len(m.trees),
		"max_depth": m.cfg.MaxDepth,
		"min_leaf":  m.cfg.MinLeaf,
		"features":  m.features,
		"classes":   m.classes,
		"samples":   m.samples,
	}
}

type snapshot struct {
	Features  []string
	Encodings map[string]map[string]float64
	Classes   []string
	Trees     []*Node
	Config    Config
	Samples   int
}

// Save saves the model to disk
func (m *Model) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.trained {
		return ErrNotTrained
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return gob.NewEncoder(f).Encode(snapshot{
		Features:  m.features,
		Encodings: m.encodings,
		Classes:   m.classes,
		Trees:     m.trees,
		Config:    m.cfg,
		Samples:   m.samples,
	})
}

// Load reads a model written by Save
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var data snapshot
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	if len(data.Trees) == 0 || len(data.Classes) == 0 {
		return nil, fmt.Errorf("decode model %s: empty forest", path)
	}
	if data.Encodings == nil {
		data.Encodings = make(map[string]map[string]float64)
	}

	return &Model{
		features:  data.Features,
		encodings: data.Encodings,
		classes:   data.Classes,
		trees:     data.Trees,
		cfg:       data.Config,
		samples:   data.Samples,
		trained:   true,
	}, nil
}
