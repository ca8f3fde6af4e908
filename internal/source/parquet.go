package source

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

// ParquetReader reads a parquet file through an in-memory DuckDB.
type ParquetReader struct {
	sqlReader
	path string
}

// OpenParquet opens path for reading. The file must exist.
func OpenParquet(path string, cols Columns) (*ParquetReader, error) {
	if err := cols.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("parquet source: %w", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}
	return &ParquetReader{
		sqlReader: sqlReader{
			db:    db,
			from:  "read_parquet(" + quoteLiteral(path) + ")",
			cols:  cols,
			quote: quoteDouble,
		},
		path: path,
	}, nil
}

func (r *ParquetReader) Kind() string     { return KindParquet }
func (r *ParquetReader) Location() string { return r.path }

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
