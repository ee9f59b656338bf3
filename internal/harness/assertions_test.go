package harness

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/resquel/internal/route"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Step: 0, Route: "POST /customer", Status: 200},
		{Step: 1, Route: "GET /customer", Status: 200},
		{Step: 2, Route: "GET /customer/:id", Status: 200},
		{Step: 3, Route: "DELETE /customer/:id", Status: 500},
		{Step: 4, Route: "GET /customer/:id", Status: 200},
	}
}

func TestAssertTraceContains_Found(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{Type: AssertTraceContains, Route: "GET /customer"})
	assert.NoError(t, err)
}

func TestAssertTraceContains_NotFound(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{Type: AssertTraceContains, Route: "PUT /customer/:id"})
	require.Error(t, err)

	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, AssertTraceContains, aerr.Type)
	assert.Equal(t, "not found in trace", aerr.Actual)
}

func TestAssertTraceContains_WrongStatus(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{Type: AssertTraceContains, Route: "DELETE /customer/:id", Status: 200})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "with status 200")

	err = assertTraceContains(sampleTrace(), Assertion{Type: AssertTraceContains, Route: "DELETE /customer/:id", Status: 500})
	assert.NoError(t, err)
}

func TestAssertTraceOrder_Correct(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{Type: AssertTraceOrder, Routes: []string{"POST /customer", "GET /customer/:id", "DELETE /customer/:id"}})
	assert.NoError(t, err)
}

func TestAssertTraceOrder_WrongOrder(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{Type: AssertTraceOrder, Routes: []string{"GET /customer", "POST /customer"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GET /customer (pos 2) should be before POST /customer (pos 1)")
}

func TestAssertTraceOrder_MissingRoute(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{Type: AssertTraceOrder, Routes: []string{"POST /customer", "PUT /customer/:id"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing route: PUT /customer/:id")
}

func TestAssertTraceCount(t *testing.T) {
	tests := []struct {
		route string
		count int
		ok    bool
	}{
		{"GET /customer/:id", 2, true},
		{"GET /customer/:id", 1, false},
		{"GET /customer/:id", 3, false},
		{"PUT /customer/:id", 0, true},
	}

	for _, tt := range tests {
		err := assertTraceCount(sampleTrace(), Assertion{Type: AssertTraceCount, Route: tt.route, Count: tt.count})
		if tt.ok {
			assert.NoError(t, err, "%s x%d", tt.route, tt.count)
		} else {
			assert.Error(t, err, "%s x%d", tt.route, tt.count)
		}
	}
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "2 request(s) to GET /x",
		Actual:   "1 request(s)",
		Trace:    []TraceEvent{{Step: 0, Route: "GET /x", Status: 200}, {Step: 1, Status: 404}},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "Expected: 2 request(s) to GET /x")
	assert.Contains(t, msg, "Actual: 1 request(s)")
	assert.Contains(t, msg, "[0] GET /x -> 200")
	assert.Contains(t, msg, "[1] (no route) -> 404")
}

func TestBuildWhereClause_Empty(t *testing.T) {
	sqlText, args, err := buildWhereClause(nil)
	require.NoError(t, err)
	assert.Empty(t, sqlText)
	assert.Nil(t, args)
}

func TestBuildWhereClause_MultipleKeys_SortedDeterministic(t *testing.T) {
	sqlText, args, err := buildWhereClause(map[string]any{"status": "new", "id": 1, "email": "a@b.c"})
	require.NoError(t, err)
	assert.Equal(t, "email = ? AND id = ? AND status = ?", sqlText)
	assert.Equal(t, []any{"a@b.c", 1, "new"}, args)
}

func TestBuildWhereClause_NoInterpolation(t *testing.T) {
	sqlText, args, err := buildWhereClause(map[string]any{"name": "x' OR '1'='1"})
	require.NoError(t, err)
	assert.Equal(t, "name = ?", sqlText)
	assert.Equal(t, []any{"x' OR '1'='1"}, args)
}

func TestBuildWhereClause_InvalidColumnName(t *testing.T) {
	_, _, err := buildWhereClause(map[string]any{"id; DROP TABLE t": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid column name")
}

func TestStateValuesEqual(t *testing.T) {
	assert.True(t, stateValuesEqual("a", "a"))
	assert.False(t, stateValuesEqual("a", int64(1)))
	assert.True(t, stateValuesEqual(3, int64(3)))
	assert.True(t, stateValuesEqual(int64(3), int64(3)))
	assert.True(t, stateValuesEqual(3, float64(3)))
	assert.False(t, stateValuesEqual(3, "3"))
	assert.True(t, stateValuesEqual(1.5, float64(1.5)))
	assert.True(t, stateValuesEqual(2.0, int64(2)))
	assert.True(t, stateValuesEqual(true, int64(1)))
	assert.True(t, stateValuesEqual(false, int64(0)))
	assert.True(t, stateValuesEqual(nil, nil))
	assert.False(t, stateValuesEqual(nil, "x"))
	assert.False(t, stateValuesEqual("x", nil))
}

func TestMatchRow_SubsetSemantics(t *testing.T) {
	actual := map[string]any{"id": float64(1), "name": "Ada", "tags": []any{"a"}}

	assert.True(t, matchRow(actual, map[string]any{}))
	assert.True(t, matchRow(actual, map[string]any{"id": 1}))
	assert.True(t, matchRow(actual, map[string]any{"name": "Ada", "tags": []any{"a"}}))
	assert.False(t, matchRow(actual, map[string]any{"id": 2}))
	assert.False(t, matchRow(actual, map[string]any{"missing": 1}))
}

type stubQuerier struct {
	rows  []route.Row
	err   error
	query string
	args  []any
}

func (s *stubQuerier) Query(ctx context.Context, sqlText string, params ...any) ([]route.Row, error) {
	s.query = sqlText
	s.args = params
	return s.rows, s.err
}

func TestAssertFinalState_RowFound_Pass(t *testing.T) {
	q := &stubQuerier{rows: []route.Row{{"id": int64(1), "email": "a@b.c", "extra": "ignored"}}}
	err := assertFinalState(context.Background(), q, Assertion{
		Type:   AssertFinalState,
		Table:  "customer",
		Where:  map[string]any{"id": 1},
		Expect: map[string]any{"email": "a@b.c"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM customer WHERE id = ?", q.query)
	assert.Equal(t, []any{1}, q.args)
}

func TestAssertFinalState_Failures(t *testing.T) {
	tests := []struct {
		name    string
		querier *stubQuerier
		want    string
	}{
		{"not found", &stubQuerier{rows: []route.Row{}}, "row not found"},
		{"ambiguous", &stubQuerier{rows: []route.Row{{"email": "a"}, {"email": "b"}}}, "multiple rows matched"},
		{"mismatch", &stubQuerier{rows: []route.Row{{"email": "other"}}}, `column "email" = other`},
		{"missing column", &stubQuerier{rows: []route.Row{{"id": int64(1)}}}, `column "email" not present`},
		{"query error", &stubQuerier{err: errors.New("no such table: customer")}, "query error: no such table"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalState(context.Background(), tt.querier, Assertion{
				Type:   AssertFinalState,
				Table:  "customer",
				Expect: map[string]any{"email": "a@b.c"},
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAssertFinalState_InvalidTableName(t *testing.T) {
	err := assertFinalState(context.Background(), &stubQuerier{}, Assertion{
		Type:   AssertFinalState,
		Table:  "customer; DROP TABLE customer",
		Expect: map[string]any{"id": 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	for _, ev := range sampleTrace() {
		result.AddTrace(ev)
	}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Route: "POST /customer"},
		{Type: AssertTraceCount, Route: "POST /customer", Count: 2},
		{Type: AssertFinalState, Table: "customer", Expect: map[string]any{"id": 1}},
		{Type: "bogus"},
	}, nil)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "trace_count")
	assert.Contains(t, errs[1], "final_state requires database context")
	assert.Contains(t, errs[2], `unknown assertion type "bogus"`)
}
