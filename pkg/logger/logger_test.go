package logger

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	require.NoError(t, Init(path))
	defer Close()

	Info("starting %s", "signup")
	Warn("slow page %d", 3)
	Error("boom")
	WithFields(map[string]interface{}{"test": "signup"}).Info("navigated")

	out := readLog(t, path)
	assert.Contains(t, out, `level=info msg="starting signup"`)
	assert.Contains(t, out, `level=warning msg="slow page 3"`)
	assert.Contains(t, out, "level=error msg=boom")
	assert.Contains(t, out, "test=signup")
}

func TestSetLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	require.NoError(t, Init(path))
	defer Close()
	defer func() { _ = SetLevel("debug") }()

	require.NoError(t, SetLevel("warn"))
	Debug("hidden")
	Warn("shown")

	out := readLog(t, path)
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")

	assert.Error(t, SetLevel("loud"))
}

func TestGetWriter(t *testing.T) {
	Close()
	assert.Equal(t, io.Discard, GetWriter(), "discards without Init")

	require.NoError(t, Init(filepath.Join(t.TempDir(), "run.log")))
	defer Close()

	assert.NotEqual(t, io.Discard, GetWriter())
}

func TestInitBadPath(t *testing.T) {
	assert.Error(t, Init(filepath.Join(t.TempDir(), "missing", "run.log")))
}
