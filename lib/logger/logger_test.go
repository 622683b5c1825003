package logger_test

import (
	"bytes"
	"log/slog"
	"testing"

	"casa-relay/lib/logger"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logger.ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, logger.ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, logger.ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel("nonsense"))
}

func TestModuleTagsRecords(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	buf := &bytes.Buffer{}
	logger.Setup(buf, "INFO")
	logger.Module("relay").Info("hello")
	logger.Module("relay").Debug("hidden")

	assert.Contains(t, buf.String(), "module=relay")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestCaptureSharesRecordsWithChildren(t *testing.T) {
	c := logger.NewCapture()
	l := c.Logger().With("module", "fees")
	l.Error("one")
	c.Logger().Info("two")

	assert.Len(t, c.Records(), 2)
	assert.Equal(t, 1, c.Count(slog.LevelError))
	assert.Equal(t, 1, c.Count(slog.LevelInfo))
}
