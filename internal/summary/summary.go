// Package summary renders descriptive statistics of the household dataset
// as the text block injected into every prompt.
package summary

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kartoza/home-energy-assistant/internal/dataset"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Header opens every rendered summary
const Header = "Statistical Summary:"

// rowLabels in render order
var rowLabels = []string{"count", "mean", "std", "min", "25%", "50%", "75%", "max"}

// ColumnStats holds the descriptive statistics of one numeric column
type ColumnStats struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Q25   float64 `json:"q25"`
	Q50   float64 `json:"q50"`
	Q75   float64 `json:"q75"`
	Max   float64 `json:"max"`
}

func (c ColumnStats) row() []float64 {
	return []float64{float64(c.Count), c.Mean, c.Std, c.Min, c.Q25, c.Q50, c.Q75, c.Max}
}

// Describe computes statistics for every numeric column, in column order.
// Missing cells are skipped; std is the sample standard deviation.
func Describe(ds *dataset.Dataset) []ColumnStats {
	var out []ColumnStats
	for _, name := range ds.Columns() {
		if !ds.IsNumeric(name) {
			continue
		}
		vals, err := ds.Float(name)
		if err != nil {
			continue
		}
		out = append(out, describeColumn(name, vals))
	}
	return out
}

func describeColumn(name string, vals []float64) ColumnStats {
	obs := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			obs = append(obs, v)
		}
	}

	c := ColumnStats{Name: name, Count: len(obs)}
	if len(obs) == 0 {
		nan := math.NaN()
		c.Mean, c.Std, c.Min, c.Q25, c.Q50, c.Q75, c.Max = nan, nan, nan, nan, nan, nan, nan
		return c
	}

	c.Mean, c.Std = stat.MeanStdDev(obs, nil)
	if len(obs) == 1 {
		c.Std = math.NaN()
	}
	c.Min = floats.Min(obs)
	c.Max = floats.Max(obs)

	sort.Float64s(obs)
	c.Q25 = Quantile(obs, 0.25)
	c.Q50 = Quantile(obs, 0.50)
	c.Q75 = Quantile(obs, 0.75)
	return c
}

// Quantile interpolates linearly between the closest ranks of sorted data
// at position (n-1)*q.
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	pos := float64(n-1) * q
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Render lays the statistics out as a grid: one column per dataset column,
// one row per statistic, values right-aligned.
func Render(stats []ColumnStats) string {
	var sb strings.Builder
	sb.WriteString(Header)
	sb.WriteString("\n")
	if len(stats) == 0 {
		sb.WriteString("(no numeric columns)\n")
		return sb.String()
	}

	labelWidth := 0
	for _, l := range rowLabels {
		labelWidth = max(labelWidth, len(l))
	}

	cells := make([][]string, len(stats))
	widths := make([]int, len(stats))
	for j, c := range stats {
		cells[j] = make([]string, len(rowLabels))
		widths[j] = len(c.Name)
		for i, v := range c.row() {
			cells[j][i] = formatValue(v)
			widths[j] = max(widths[j], len(cells[j][i]))
		}
	}

	sb.WriteString(strings.Repeat(" ", labelWidth))
	for j, c := range stats {
		fmt.Fprintf(&sb, "  %*s", widths[j], c.Name)
	}
	sb.WriteString("\n")

	for i, label := range rowLabels {
		fmt.Fprintf(&sb, "%-*s", labelWidth, label)
		for j := range stats {
			fmt.Fprintf(&sb, "  %*s", widths[j], cells[j][i])
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return fmt.Sprintf("%.6f", v)
}

// Generate describes and renders the dataset in one step
func Generate(ds *dataset.Dataset) string {
	return Render(Describe(ds))
}
