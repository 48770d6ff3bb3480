package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeDisabled(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, false, "info"))
	defer CloseAll()

	// No log directory should be created in production mode.
	_, err := os.Stat(filepath.Join(dir, "logs"))
	assert.True(t, os.IsNotExist(err))

	// Logging must be a silent no-op.
	Listener("polled %d channels", 3)
}

func TestInitializeDebugWritesFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, true, "debug"))
	defer CloseAll()

	Filter("message %s matched signal %s", "m-1", "objectId")

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestGetReturnsSameLogger(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, true, "info"))
	defer CloseAll()

	a := Get(CategoryStore)
	b := Get(CategoryStore)
	assert.Same(t, a, b)
}
