package engine

import (
	"github.com/roach88/resquel/internal/route"
)

// Entry records one successful statement.
type Entry struct {
	Index  int
	Seq    int64
	Query  string
	Params []any
	Result *route.Result
}

// Failure records one failed statement.
type Failure struct {
	Index  int
	Seq    int64
	Query  string
	Params []any
	Err    error
}

// ChainLog is the ordered record of one chain's execution.
//
// Entries are in execution order. Seq values are shared between entries and
// failures, so the two lists can be merged back into execution order.
// A ChainLog belongs to one request and is not safe for concurrent use.
type ChainLog struct {
	clock    *Clock
	Entries  []Entry
	Failures []Failure
	byIndex  map[int]int
}

// NewChainLog returns an empty log.
func NewChainLog() *ChainLog {
	return &ChainLog{clock: NewClock(), byIndex: make(map[int]int)}
}

// Append records a successful statement at declared position index.
func (l *ChainLog) Append(index int, query string, params []any, result *route.Result) {
	l.byIndex[index] = len(l.Entries)
	l.Entries = append(l.Entries, Entry{
		Index:  index,
		Seq:    l.clock.Next(),
		Query:  query,
		Params: params,
		Result: result,
	})
}

// Fail records a failed statement at declared position index.
func (l *ChainLog) Fail(index int, query string, params []any, err error) {
	l.Failures = append(l.Failures, Failure{
		Index:  index,
		Seq:    l.clock.Next(),
		Query:  query,
		Params: params,
		Err:    err,
	})
}

// Rows returns the rows produced by the statement at declared position
// index. ok is false if that statement has not run or failed.
func (l *ChainLog) Rows(index int) ([]route.Row, bool) {
	if l == nil {
		return nil, false
	}
	i, ok := l.byIndex[index]
	if !ok {
		return nil, false
	}
	return l.Entries[i].Result.Rows, true
}

// Last returns the most recent successful result, or nil.
func (l *ChainLog) Last() *route.Result {
	if l == nil || len(l.Entries) == 0 {
		return nil
	}
	return l.Entries[len(l.Entries)-1].Result
}

// Len returns the number of successful statements.
func (l *ChainLog) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Entries)
}
