package dataset

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ColumnFill counts the missing cells handled in one column
type ColumnFill struct {
	Column  string `json:"column"`
	Missing int    `json:"missing"`
	Filled  int    `json:"filled"`
	Leading int    `json:"leading"`
	Imputed int    `json:"imputed"`
}

// FillReport lists the columns that had missing cells
type FillReport []ColumnFill

// Filled returns the number of cells copied forward
func (r FillReport) Filled() int {
	n := 0
	for _, c := range r {
		n += c.Filled
	}
	return n
}

// Unfilled returns the number of cells still missing after imputation
func (r FillReport) Unfilled() int {
	n := 0
	for _, c := range r {
		n += c.Leading - c.Imputed
	}
	return n
}

// ForwardFill replaces every missing cell with the nearest preceding
// observed value in the same column. A leading gap has no predecessor and
// stays missing; its size is reported as Leading.
func (d *Dataset) ForwardFill() (FillReport, error) {
	var report FillReport
	for _, name := range d.Columns() {
		if d.IsNumeric(name) {
			vals := d.df.Col(name).Float()
			missing := countNaN(vals)
			if missing == 0 {
				continue
			}
			filled, leading := forwardFillFloats(vals)
			if err := d.setFloat(name, vals); err != nil {
				return nil, err
			}
			report = append(report, ColumnFill{Column: name, Missing: missing, Filled: filled, Leading: leading})
			continue
		}

		vals, miss, err := d.Values(name)
		if err != nil {
			return nil, err
		}
		missing := countTrue(miss)
		if missing == 0 {
			continue
		}
		filled, leading := forwardFillStrings(vals, miss)
		if err := d.setStrings(name, vals, miss); err != nil {
			return nil, err
		}
		report = append(report, ColumnFill{Column: name, Missing: missing, Filled: filled, Leading: leading})
	}
	return report, nil
}

// ImputeLeading fills the run of missing cells at the top of each column:
// numeric columns get the mean of the observed values, other columns the most
// frequent observed value. Columns with nothing observed are left alone.
// It returns the number of cells imputed per column.
func (d *Dataset) ImputeLeading() (map[string]int, error) {
	imputed := make(map[string]int)
	for _, name := range d.Columns() {
		if d.IsNumeric(name) {
			vals := d.df.Col(name).Float()
			lead := leadingNaN(vals)
			if lead == 0 || lead == len(vals) {
				continue
			}
			mean := stat.Mean(observed(vals), nil)
			for i := 0; i < lead; i++ {
				vals[i] = mean
			}
			if err := d.setFloat(name, vals); err != nil {
				return nil, err
			}
			imputed[name] = lead
			continue
		}

		vals, miss, err := d.Values(name)
		if err != nil {
			return nil, err
		}
		lead := 0
		for lead < len(miss) && miss[lead] {
			lead++
		}
		if lead == 0 || lead == len(miss) {
			continue
		}
		mode := mostFrequent(vals, miss)
		for i := 0; i < lead; i++ {
			vals[i] = mode
			miss[i] = false
		}
		if err := d.setStrings(name, vals, miss); err != nil {
			return nil, err
		}
		imputed[name] = lead
	}
	return imputed, nil
}

func forwardFillFloats(vals []float64) (filled, leading int) {
	last := math.NaN()
	seen := false
	for i, v := range vals {
		if !math.IsNaN(v) {
			last = v
			seen = true
			continue
		}
		if !seen {
			leading++
			continue
		}
		vals[i] = last
		filled++
	}
	return filled, leading
}

func forwardFillStrings(vals []string, missing []bool) (filled, leading int) {
	last := ""
	seen := false
	for i := range vals {
		if !missing[i] {
			last = vals[i]
			seen = true
			continue
		}
		if !seen {
			leading++
			continue
		}
		vals[i] = last
		missing[i] = false
		filled++
	}
	return filled, leading
}

func leadingNaN(vals []float64) int {
	n := 0
	for n < len(vals) && math.IsNaN(vals[n]) {
		n++
	}
	return n
}

func observed(vals []float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func countNaN(vals []float64) int {
	n := 0
	for _, v := range vals {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

func countTrue(flags []bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

// mostFrequent breaks ties by the smallest value so the result is stable
func mostFrequent(vals []string, missing []bool) string {
	counts := make(map[string]int)
	for i, v := range vals {
		if !missing[i] {
			counts[v]++
		}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best, bestN := "", -1
	for _, k := range keys {
		if counts[k] > bestN {
			best, bestN = k, counts[k]
		}
	}
	return best
}
