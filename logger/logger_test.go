package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitialize(t *testing.T) {
	err := Initialize(true)
	require.NoError(t, err)
	assert.True(t, JSONOutput)
	assert.NotNil(t, Logger)

	err = Initialize(false)
	require.NoError(t, err)
	assert.False(t, JSONOutput)
}

func TestHelpersSafeBeforeInitialize(t *testing.T) {
	// The package-level helpers must never panic, even with the no-op logger
	Infow("startup", "port", 8600)
	Errorw("failure", "error", "boom")
	Debugw("detail")
	Warnw("warning")
	Cleanup()
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zap.InfoLevel, VerbosityToLevel(0))
	assert.Equal(t, zap.InfoLevel, VerbosityToLevel(1))
	assert.Equal(t, zap.DebugLevel, VerbosityToLevel(2))
	assert.Equal(t, zap.DebugLevel, VerbosityToLevel(5))
}
