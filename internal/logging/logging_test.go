package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FiltersByLevelAndTagsRun(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "info", "run-1")
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("KB match", "name", "zlib")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "KB match")
	assert.Contains(t, out, "run=run-1")
	assert.Contains(t, out, "name=zlib")
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "verbose", "")
	assert.Error(t, err)
}

func TestOpen_AppendsAcrossRuns(t *testing.T) {
	p := filepath.Join(t.TempDir(), "logs", "kbmatch.log")

	for _, msg := range []string{"first", "second"} {
		logger, closeFn, err := Open(p, "debug")
		require.NoError(t, err)
		logger.Info(msg)
		require.NoError(t, closeFn())
	}

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Contains(t, string(b), "first")
	assert.Contains(t, string(b), "second")
}

func TestNewRunID_IsUUID(t *testing.T) {
	_, err := uuid.Parse(NewRunID())
	assert.NoError(t, err)
	assert.NotEqual(t, NewRunID(), NewRunID())
}
