// Package dataset loads and preprocesses the household energy table.
//
// A Dataset is built once at startup, filled and standardized in place, and
// then only read. It is not safe to mutate concurrently with readers.
package dataset

import (
	"errors"
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// StandardizedColumns are scaled at startup and must be present and numeric
var StandardizedColumns = []string{"housearea", "ave_monthly_income", "num_people", "num_children"}

var (
	ErrMissingColumn    = errors.New("missing column")
	ErrNonNumericColumn = errors.New("column is not numeric")
	ErrEmptyDataset     = errors.New("dataset has no rows")
)

// nanValues are the cell spellings treated as missing on load
var nanValues = []string{"", "NA", "N/A", "NaN", "nan", "null", "NULL", "<nil>"}

// Dataset is an in-memory table of household records
type Dataset struct {
	Source string
	df     dataframe.DataFrame
}

// FromRecords builds a dataset from a header row followed by data rows.
// Column types are detected from the values.
func FromRecords(source string, records [][]string) (*Dataset, error) {
	if len(records) < 2 {
		return nil, fmt.Errorf("%s: %w", source, ErrEmptyDataset)
	}
	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.NaNValues(nanValues),
	)
	return fromFrame(source, df)
}

func fromFrame(source string, df dataframe.DataFrame) (*Dataset, error) {
	if df.Err != nil {
		return nil, fmt.Errorf("parse %s: %w", source, df.Err)
	}
	if df.Nrow() == 0 {
		return nil, fmt.Errorf("%s: %w", source, ErrEmptyDataset)
	}
	return &Dataset{Source: source, df: df}, nil
}

// Frame returns the underlying data frame
func (d *Dataset) Frame() dataframe.DataFrame {
	return d.df
}

// Rows returns the number of records
func (d *Dataset) Rows() int {
	return d.df.Nrow()
}

// Columns returns the column names in file order
func (d *Dataset) Columns() []string {
	return d.df.Names()
}

// HasColumn reports whether the named column exists
func (d *Dataset) HasColumn(name string) bool {
	for _, n := range d.df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// IsNumeric reports whether the named column holds numbers
func (d *Dataset) IsNumeric(name string) bool {
	if !d.HasColumn(name) {
		return false
	}
	t := d.df.Col(name).Type()
	return t == series.Float || t == series.Int
}

// Float returns a copy of a numeric column. Missing cells are NaN.
func (d *Dataset) Float(name string) ([]float64, error) {
	if !d.HasColumn(name) {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	if !d.IsNumeric(name) {
		return nil, fmt.Errorf("%w: %s", ErrNonNumericColumn, name)
	}
	return d.df.Col(name).Float(), nil
}

// Values returns a column as text together with a per-cell missing flag
func (d *Dataset) Values(name string) ([]string, []bool, error) {
	if !d.HasColumn(name) {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	s := d.df.Col(name)
	n := s.Len()
	vals := make([]string, n)
	missing := make([]bool, n)
	for i := 0; i < n; i++ {
		e := s.Elem(i)
		if e.IsNA() {
			missing[i] = true
			continue
		}
		vals[i] = e.String()
	}
	return vals, missing, nil
}

func (d *Dataset) setFloat(name string, vals []float64) error {
	df := d.df.Mutate(series.New(vals, series.Float, name))
	if df.Err != nil {
		return fmt.Errorf("update column %s: %w", name, df.Err)
	}
	d.df = df
	return nil
}

func (d *Dataset) setStrings(name string, vals []string, missing []bool) error {
	out := make([]string, len(vals))
	for i, v := range vals {
		if missing[i] {
			out[i] = "NaN"
			continue
		}
		out[i] = v
	}
	df := d.df.Mutate(series.New(out, series.String, name))
	if df.Err != nil {
		return fmt.Errorf("update column %s: %w", name, df.Err)
	}
	d.df = df
	return nil
}
