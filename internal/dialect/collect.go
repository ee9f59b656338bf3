package dialect

import (
	"database/sql"

	"github.com/roach88/resquel/internal/route"
)

// resultSet is one result set read from *sql.Rows. A statement that
// produces no result set yields a resultSet with no columns.
type resultSet struct {
	Columns []string
	Rows    []route.Row
}

func (s resultSet) hasColumns() bool {
	return len(s.Columns) > 0
}

// bytesDecoder converts a []byte column value given the column's database
// type name (as reported by sql.ColumnType.DatabaseTypeName).
type bytesDecoder func(dbType string, b []byte) any

// textBytes is the default decoder: byte values become strings.
func textBytes(_ string, b []byte) any {
	return string(b)
}

func collectResultSets(rows *sql.Rows, decode bytesDecoder) ([]resultSet, error) {
	if decode == nil {
		decode = textBytes
	}
	sets := make([]resultSet, 0, 1)

	for {
		cols, err := rows.Columns()
		if err != nil {
			return nil, err
		}
		dbTypes := make([]string, len(cols))
		if types, err := rows.ColumnTypes(); err == nil {
			for i, ct := range types {
				dbTypes[i] = ct.DatabaseTypeName()
			}
		}

		set := resultSet{Columns: cols, Rows: make([]route.Row, 0)}
		for rows.Next() {
			values := make([]any, len(cols))
			scanArgs := make([]any, len(cols))
			for i := range values {
				scanArgs[i] = &values[i]
			}

			if err := rows.Scan(scanArgs...); err != nil {
				return nil, err
			}

			row := make(route.Row, len(cols))
			for i, col := range cols {
				v := values[i]
				if b, ok := v.([]byte); ok {
					row[col] = decode(dbTypes[i], b)
					continue
				}
				row[col] = v
			}
			set.Rows = append(set.Rows, row)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}

		sets = append(sets, set)
		if !rows.NextResultSet() {
			break
		}
	}

	return sets, nil
}

// firstWithColumns returns the rows of the first set that has columns.
func firstWithColumns(sets []resultSet) ([]route.Row, bool) {
	for _, s := range sets {
		if s.hasColumns() {
			return s.Rows, true
		}
	}
	return nil, false
}
