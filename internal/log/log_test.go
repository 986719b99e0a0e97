package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevel(t *testing.T) {
	original := GetLogLevel()
	t.Cleanup(func() { _ = SetLogLevel(original) })

	tests := []struct {
		input string
		want  string
	}{
		{"error", "error"},
		{"WARNING", "warn"},
		{" debug ", "debug"},
		{"trace", "trace"},
		{"", "info"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			require.NoError(t, SetLogLevel(tt.input))
			assert.Equal(t, tt.want, GetLogLevel())
		})
	}

	require.NoError(t, SetLogLevel("trace"))
	assert.True(t, traceEnabled())
	require.NoError(t, SetLogLevel("debug"))
	assert.False(t, traceEnabled())
}

func TestSetLogLevel_Invalid(t *testing.T) {
	original := GetLogLevel()
	t.Cleanup(func() { _ = SetLogLevel(original) })

	require.NoError(t, SetLogLevel("warn"))
	assert.Error(t, SetLogLevel("verbose"))
	assert.Equal(t, "warn", GetLogLevel())
}

func TestReloadFromEnv(t *testing.T) {
	original := GetLogLevel()
	t.Cleanup(func() { _ = SetLogLevel(original) })

	require.NoError(t, SetLogLevel("info"))

	t.Setenv("LOG_LEVEL", "debug")
	require.NoError(t, ReloadFromEnv())
	assert.Equal(t, "debug", GetLogLevel())

	t.Setenv("LOG_LEVEL", "loud")
	assert.Error(t, ReloadFromEnv())
	assert.Equal(t, "debug", GetLogLevel())
}
