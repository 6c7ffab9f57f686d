package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewDefaultsRotationSettings(t *testing.T) {
	logger, err := New(Options{})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewWritesJSONWhenRequestedExplicitly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")

	logger, err := New(Options{JSON: true, FilePath: path})
	require.NoError(t, err)
	logger.Info("hello", zap.String("k", "v"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"hello"`)
	require.Contains(t, string(data), `"k":"v"`)
}

func TestNewConsultsEnableJSONLogsEnvWhenOptionUnset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")
	t.Setenv("ENABLE_JSON_LOGS", "true")

	logger, err := New(Options{FilePath: path})
	require.NoError(t, err)
	logger.Info("from-env")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"from-env"`)
}

func TestNewDefaultsToConsoleEncoderWithoutEnvOrOption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")

	logger, err := New(Options{FilePath: path})
	require.NoError(t, err)
	logger.Info("console-line")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "console-line")
	require.NotContains(t, string(data), `"msg":"console-line"`, "console encoder must not emit JSON keys")
}
