package logger_test

import (
	"testing"

	"codeberg.org/mutker/coherentd/internal/logger"
	"github.com/stretchr/testify/assert"
)

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, logger.DebugLevel, logger.LevelFromString("debug"))
	assert.Equal(t, logger.InfoLevel, logger.LevelFromString("info"))
	assert.Equal(t, logger.WarnLevel, logger.LevelFromString("warning"))
	assert.Equal(t, logger.ErrorLevel, logger.LevelFromString("error"))

	// Unknown names fall back to info rather than silencing the log.
	assert.Equal(t, logger.InfoLevel, logger.LevelFromString("bogus"))
	assert.Equal(t, logger.InfoLevel, logger.LevelFromString(""))
}
