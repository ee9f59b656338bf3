package dialect

import (
	"github.com/roach88/resquel/internal/config"
	"github.com/roach88/resquel/internal/route"
)

// Normalize maps a backend's raw response onto a uniform row list.
//
// Dispatch is keyed by the declared driver, not by sniffing the value. ok is
// false when the raw value does not have the shape the driver produces; the
// value is then passed through when it is already a row list, and dropped
// otherwise. The returned slice is never nil.
func Normalize(driver config.DBDriver, raw Raw) (rows []route.Row, ok bool) {
	switch driver {
	case config.DBDriverPostgres:
		rows, ok = normalizePostgres(raw)
	case config.DBDriverMySQL:
		rows, ok = normalizeMySQL(raw)
	case config.DBDriverMSSQL:
		rows, ok = normalizeMSSQL(raw)
	case config.DBDriverSQLite, config.DBDriverDuckDB:
		rows, ok = asRows(raw)
	}
	if !ok {
		rows, _ = asRows(raw)
	}
	if rows == nil {
		rows = []route.Row{}
	}
	return rows, ok
}

func normalizePostgres(raw Raw) ([]route.Row, bool) {
	switch r := raw.(type) {
	case PostgresResult:
		return r.Rows, true
	case *PostgresResult:
		if r == nil {
			return nil, false
		}
		return r.Rows, true
	}
	return nil, false
}

// normalizeMySQL returns the first row set of the response. A leading
// OkPacket is an acknowledgement; rows that follow it are returned, and an
// acknowledgement alone yields no rows.
func normalizeMySQL(raw Raw) ([]route.Row, bool) {
	resp, ok := raw.(MySQLResponse)
	if !ok {
		return nil, false
	}
	for _, el := range resp {
		switch v := el.(type) {
		case RowSet:
			return v, true
		case []route.Row:
			return v, true
		case OkPacket, *OkPacket:
			continue
		default:
			return nil, false
		}
	}
	return nil, true
}

func normalizeMSSQL(raw Raw) ([]route.Row, bool) {
	var r MSSQLResult
	switch v := raw.(type) {
	case MSSQLResult:
		r = v
	case *MSSQLResult:
		if v == nil {
			return nil, false
		}
		r = *v
	default:
		return nil, false
	}
	if r.Recordset == nil && len(r.Recordsets) > 0 {
		return r.Recordsets[0], true
	}
	return r.Recordset, true
}

func asRows(raw Raw) ([]route.Row, bool) {
	switch r := raw.(type) {
	case RowSet:
		return r, true
	case []route.Row:
		return r, true
	case []map[string]any:
		out := make([]route.Row, len(r))
		for i, m := range r {
			out[i] = m
		}
		return out, true
	}
	return nil, false
}
