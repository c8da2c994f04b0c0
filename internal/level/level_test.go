package level

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrdering(t *testing.T) {
	for i := 1; i < len(All); i++ {
		assert.Less(t, All[i-1], All[i])
	}
	assert.False(t, Invalid.Valid())
	assert.Equal(t, "INVALID", Invalid.String())
	assert.Equal(t, "INVALID", Level(42).String())
}

func TestSlogRoundTrip(t *testing.T) {
	for _, l := range All {
		assert.Equal(t, l, FromSlog(l.Slog()), l.String())
	}
	assert.Equal(t, Info, FromSlog(slog.LevelInfo+2))
	assert.Less(t, Keys.Slog(), slog.LevelDebug)
	assert.Greater(t, Critical.Slog(), slog.LevelError)
}

func TestDefaultTableParse(t *testing.T) {
	table := DefaultTable()

	assert.Equal(t, Debug, table.Parse("DEBUG"))
	assert.Equal(t, Warn, table.Parse("warn"))
	assert.Equal(t, Keys, table.Parse("Keys"))
	assert.Equal(t, Invalid, table.Parse("LOUD"))
	assert.Equal(t, Invalid, table.Parse(""))
	assert.Equal(t, Keys, table.Lowest())
	assert.Equal(t, []string{"KEYS", "DEBUG", "INFO", "WARN", "ERROR", "CRITICAL"}, table.Names())
}

func TestNewTable(t *testing.T) {
	table, err := NewTable([]string{" error", "DEBUG", "debug", ""})
	require.NoError(t, err)

	assert.Equal(t, []string{"DEBUG", "ERROR", "CRITICAL"}, table.Names())
	assert.Equal(t, Debug, table.Lowest())
	assert.Equal(t, Invalid, table.Parse("INFO"))
	assert.Equal(t, Critical, table.Parse("critical"))

	_, err = NewTable([]string{"DEBUG", "VERBOSE"})
	assert.ErrorContains(t, err, "VERBOSE")
}

func TestNewTableAlwaysHasCritical(t *testing.T) {
	table, err := NewTable(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"CRITICAL"}, table.Names())
	assert.Equal(t, Critical, table.Lowest())
}
