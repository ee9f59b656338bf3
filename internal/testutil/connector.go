package testutil

import (
	"context"
	"sync"

	"github.com/roach88/resquel/internal/config"
	"github.com/roach88/resquel/internal/dialect"
	"github.com/roach88/resquel/internal/route"
)

// Call is one statement received by a RecordingConnector.
type Call struct {
	SQL    string
	Params []any
}

type response struct {
	raw dialect.Raw
	err error
}

// RecordingConnector is an in-memory dialect.Connector that records every
// call and answers from scripted responses.
//
// Responses are keyed by SQL text. Several responses for the same text are
// returned in order; the last one repeats. Unscripted statements return the
// driver's empty response shape.
//
// Thread-safety: safe for concurrent use via internal mutex.
type RecordingConnector struct {
	mu        sync.Mutex
	driver    config.DBDriver
	responses map[string][]response
	calls     []Call
	closed    bool
}

// NewRecordingConnector creates a connector that reports itself as driver.
func NewRecordingConnector(driver config.DBDriver) *RecordingConnector {
	return &RecordingConnector{
		driver:    driver,
		responses: make(map[string][]response),
	}
}

// On scripts a raw response for sqlText.
func (c *RecordingConnector) On(sqlText string, raw dialect.Raw) *RecordingConnector {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[sqlText] = append(c.responses[sqlText], response{raw: raw})
	return c
}

// OnRows scripts rows for sqlText in the driver's native shape.
func (c *RecordingConnector) OnRows(sqlText string, rows ...route.Row) *RecordingConnector {
	return c.On(sqlText, NativeRaw(c.driver, rows))
}

// Fail scripts an error for sqlText.
func (c *RecordingConnector) Fail(sqlText string, err error) *RecordingConnector {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[sqlText] = append(c.responses[sqlText], response{err: err})
	return c
}

// Driver implements dialect.Connector.
func (c *RecordingConnector) Driver() config.DBDriver {
	return c.driver
}

// Exec implements dialect.Connector.
func (c *RecordingConnector) Exec(ctx context.Context, sqlText string, params []any) (dialect.Raw, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, Call{SQL: sqlText, Params: append([]any(nil), params...)})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queue := c.responses[sqlText]
	if len(queue) == 0 {
		return NativeRaw(c.driver, nil), nil
	}
	resp := queue[0]
	if len(queue) > 1 {
		c.responses[sqlText] = queue[1:]
	}
	return resp.raw, resp.err
}

// Ping implements dialect.Connector.
func (c *RecordingConnector) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close implements dialect.Connector.
func (c *RecordingConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Calls returns a copy of the recorded calls in order.
func (c *RecordingConnector) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Closed reports whether Close was called.
func (c *RecordingConnector) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// NativeRaw wraps rows in the response shape driver produces. Nil rows give
// the shape of a statement without a result set.
func NativeRaw(driver config.DBDriver, rows []route.Row) dialect.Raw {
	switch driver {
	case config.DBDriverPostgres:
		return dialect.PostgresResult{RowCount: len(rows), Rows: rows}
	case config.DBDriverMySQL:
		if rows == nil {
			return dialect.MySQLResponse{dialect.OkPacket{}}
		}
		return dialect.MySQLResponse{dialect.RowSet(rows)}
	case config.DBDriverMSSQL:
		if rows == nil {
			return dialect.MSSQLResult{}
		}
		return dialect.MSSQLResult{Recordset: rows, Recordsets: [][]route.Row{rows}}
	default:
		if rows == nil {
			return dialect.RowSet{}
		}
		return dialect.RowSet(rows)
	}
}
