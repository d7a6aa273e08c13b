package testutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferedSlogHandler(t *testing.T) {
	t.Run("captures log records", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.Info("test message", slog.String("key", "value"))
		logger.Error("error message", slog.Int("code", 500))

		assert.Equal(t, 2, handler.Count())
		assert.True(t, handler.ContainsMessage("test message"))
		assert.True(t, handler.ContainsAttr("key", "value"))
		assert.Len(t, handler.GetRecordsByLevel(slog.LevelError), 1)
	})

	t.Run("derived loggers share the buffer", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.With("dataset", "cash").Info("load started")

		assert.Equal(t, 1, handler.Count())
		AssertLogAttr(t, handler, "dataset", "cash")
		AssertLogContains(t, handler, slog.LevelInfo, "load started")
		AssertNoErrors(t, handler)
	})
}

func TestJanuary2014(t *testing.T) {
	cal := January2014("2014-01-04", "2014-01-09")
	assert.Equal(t, 29, cal.Len())
	assert.False(t, cal.Contains(Day("2014-01-04")))
	assert.True(t, cal.Contains(Day("2014-01-05")))
}
