package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	cfg, shouldExit, err := Parse([]string{"grid.hcl"}, out)
	require.NoError(t, err)
	require.False(t, shouldExit)
	assert.Equal(t, "grid.hcl", cfg.GridPath)
	assert.Equal(t, 10, cfg.Workers)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 0, cfg.HealthcheckPort)
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	cfg, shouldExit, err := Parse([]string{
		"--grid", "grids/",
		"--workers", "4",
		"--log-format", "text",
		"--log-level", "debug",
		"--healthcheck-port", "8080",
	}, out)
	require.NoError(t, err)
	require.False(t, shouldExit)
	assert.Equal(t, "grids/", cfg.GridPath)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.HealthcheckPort)
}

func TestParseShorthandGridFlag(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	cfg, _, err := Parse([]string{"-g", "grid.hcl"}, out)
	require.NoError(t, err)
	assert.Equal(t, "grid.hcl", cfg.GridPath)
}

func TestParseNoPathPrintsUsage(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	cfg, shouldExit, err := Parse(nil, out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParseInvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{"bad log format", []string{"--log-format", "xml", "grid.hcl"}},
		{"bad log level", []string{"--log-level", "verbose", "grid.hcl"}},
		{"zero workers", []string{"--workers", "0", "grid.hcl"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			_, _, err := Parse(tt.args, out)
			require.Error(t, err)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
		})
	}
}
