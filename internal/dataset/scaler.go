package dataset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes columns to zero mean and unit variance.
// Parameters are fit on the same data they transform; the population
// standard deviation is used and a zero spread scales by 1.
type Scaler struct {
	Columns []string  `json:"columns"`
	Means   []float64 `json:"means"`
	Scales  []float64 `json:"scales"`
}

// FitScaler computes per-column mean and spread, ignoring missing cells
func FitScaler(d *Dataset, columns []string) (*Scaler, error) {
	s := &Scaler{
		Columns: append([]string(nil), columns...),
		Means:   make([]float64, len(columns)),
		Scales:  make([]float64, len(columns)),
	}
	for i, name := range columns {
		vals, err := d.Float(name)
		if err != nil {
			return nil, fmt.Errorf("fit scaler: %w", err)
		}
		obs := observed(vals)
		if len(obs) == 0 {
			s.Means[i] = math.NaN()
			s.Scales[i] = 1
			continue
		}
		mean, std := stat.PopMeanStdDev(obs, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Means[i] = mean
		s.Scales[i] = std
	}
	return s, nil
}

// Transform rewrites the scaler's columns in place. Missing cells stay NaN.
func (s *Scaler) Transform(d *Dataset) error {
	for i, name := range s.Columns {
		vals, err := d.Float(name)
		if err != nil {
			return fmt.Errorf("transform: %w", err)
		}
		for j, v := range vals {
			vals[j] = (v - s.Means[i]) / s.Scales[i]
		}
		if err := d.setFloat(name, vals); err != nil {
			return err
		}
	}
	return nil
}

// Apply scales a single raw value of the named column. It reports false
// when the column is not handled by this scaler.
func (s *Scaler) Apply(column string, v float64) (float64, bool) {
	for i, name := range s.Columns {
		if name == column {
			return (v - s.Means[i]) / s.Scales[i], true
		}
	}
	return v, false
}

// Standardize fits a scaler on the given columns and transforms them in one step
func (d *Dataset) Standardize(columns []string) (*Scaler, error) {
	s, err := FitScaler(d, columns)
	if err != nil {
		return nil, err
	}
	if err := s.Transform(d); err != nil {
		return nil, err
	}
	return s, nil
}
