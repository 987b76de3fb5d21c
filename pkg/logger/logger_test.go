package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithOptions_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweeper.log")

	InitWithOptions("price-sweeper", "prod", "info", Options{File: path})
	L().Info("sweeper.test_entry")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sweeper.test_entry")
	assert.Contains(t, string(data), `"service":"price-sweeper"`)
}

func TestAccessorsInitializeLazily(t *testing.T) {
	log, sugar = nil, nil
	assert.NotNil(t, L())
	assert.NotNil(t, S())
}
