package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/resquel/internal/config"
	"github.com/roach88/resquel/internal/dialect"
	"github.com/roach88/resquel/internal/route"
)

func TestRecordingConnector_RecordsCalls(t *testing.T) {
	c := NewRecordingConnector(config.DBDriverSQLite)
	ctx := context.Background()

	_, err := c.Exec(ctx, "SELECT 1", nil)
	require.NoError(t, err)
	_, err = c.Exec(ctx, "SELECT ?", []any{"x"})
	require.NoError(t, err)

	assert.Equal(t, []Call{
		{SQL: "SELECT 1"},
		{SQL: "SELECT ?", Params: []any{"x"}},
	}, c.Calls())
}

func TestRecordingConnector_ScriptedResponsesInOrder(t *testing.T) {
	boom := errors.New("boom")
	c := NewRecordingConnector(config.DBDriverSQLite).
		OnRows("Q", route.Row{"n": 1}).
		Fail("Q", boom)
	ctx := context.Background()

	raw, err := c.Exec(ctx, "Q", nil)
	require.NoError(t, err)
	assert.Equal(t, dialect.RowSet{{"n": 1}}, raw)

	_, err = c.Exec(ctx, "Q", nil)
	assert.ErrorIs(t, err, boom)

	// Last response repeats.
	_, err = c.Exec(ctx, "Q", nil)
	assert.ErrorIs(t, err, boom)
}

func TestNativeRaw_NormalizesBack(t *testing.T) {
	rows := []route.Row{{"id": int64(1)}}
	for _, driver := range config.DBDriverValues() {
		got, ok := dialect.Normalize(driver, NativeRaw(driver, rows))
		assert.True(t, ok, driver)
		assert.Equal(t, rows, got, driver)

		empty, ok := dialect.Normalize(driver, NativeRaw(driver, nil))
		assert.True(t, ok, driver)
		assert.Empty(t, empty, driver)
	}
}
