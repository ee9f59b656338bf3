package dialect

import "github.com/roach88/resquel/internal/route"

// Raw is a backend-specific statement response. Its concrete type depends
// on the connector that produced it; use Normalize to obtain rows.
type Raw any

// PostgresResult mirrors the pg result object: rows plus a row count.
type PostgresResult struct {
	Fields   []string
	RowCount int
	Rows     []route.Row
}

// OkPacket is the MySQL acknowledgement for a statement without a result
// set.
type OkPacket struct {
	AffectedRows int64
	InsertID     int64
}

// MySQLResponse is the ordered list of packets returned for one call. Each
// element is an OkPacket or a RowSet. A leading OkPacket marks a non-select
// acknowledgement; rows that follow it belong to a later statement of a
// multi-statement call.
type MySQLResponse []any

// MSSQLResult mirrors the mssql request result: the first record set and
// all record sets.
type MSSQLResult struct {
	Recordset  []route.Row
	Recordsets [][]route.Row
}

// RowSet is a plain row list, returned by sqlite and duckdb.
type RowSet []route.Row
