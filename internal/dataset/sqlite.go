package dataset

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

var ErrMissingTable = errors.New("missing table")

// LoadSQLite reads every row of table from a SQLite database opened
// read-only. NULL cells are treated as missing.
func LoadSQLite(path, table string) (*Dataset, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	defer db.Close()

	var count int
	err = db.QueryRow("SELECT count(*) FROM sqlite_master WHERE type IN ('table','view') AND name = ?", table).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("inspect sqlite %s: %w", path, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: %q in %s", ErrMissingTable, table, filepath.Base(path))
	}

	rows, err := db.Query("SELECT * FROM " + quoteIdent(table))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}

	records := [][]string{cols}
	cells := make([]sql.NullString, len(cols))
	ptrs := make([]any, len(cols))
	for i := range cells {
		ptrs[i] = &cells[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		rec := make([]string, len(cols))
		for i, c := range cells {
			if c.Valid {
				rec[i] = c.String
			} else {
				rec[i] = "NaN"
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}

	return FromRecords(filepath.Base(path)+":"+table, records)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
