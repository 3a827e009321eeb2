package dataset

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/spf13/afero"
)

// Load reads a dataset from path. SQLite files (.db, .sqlite, .sqlite3) are
// read from the given table; anything else is parsed as CSV from fsys.
func Load(fsys afero.Fs, path, table string) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return LoadSQLite(path, table)
	default:
		return LoadCSV(fsys, path)
	}
}

// LoadCSV reads a CSV file with a header row
func LoadCSV(fsys afero.Fs, path string) (*Dataset, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.NaNValues(nanValues),
	)
	return fromFrame(filepath.Base(path), df)
}

// PrepareReport summarizes startup preprocessing
type PrepareReport struct {
	Fill   FillReport `json:"fill"`
	Scaler *Scaler    `json:"scaler"`
}

// Prepare forward-fills missing values, imputes leading gaps and
// standardizes StandardizedColumns. A missing or non-numeric standardized
// column is an error.
func Prepare(d *Dataset) (*PrepareReport, error) {
	for _, name := range StandardizedColumns {
		if !d.HasColumn(name) {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	fill, err := d.ForwardFill()
	if err != nil {
		return nil, fmt.Errorf("forward fill: %w", err)
	}
	imputed, err := d.ImputeLeading()
	if err != nil {
		return nil, fmt.Errorf("impute leading gaps: %w", err)
	}
	for i := range fill {
		fill[i].Imputed = imputed[fill[i].Column]
	}

	scaler, err := d.Standardize(StandardizedColumns)
	if err != nil {
		return nil, err
	}
	return &PrepareReport{Fill: fill, Scaler: scaler}, nil
}
