package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInit(t *testing.T) {
	t.Cleanup(func() { Lg = zap.NewNop() })

	file := filepath.Join(t.TempDir(), "app.log")
	err := Init(&LogConfig{Level: "debug", Filename: file, MaxSize: 1}, "production")
	require.NoError(t, err)

	Info("bridge opened", zap.String("bridgeId", "b-1"))
	Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "bridge opened")
	assert.Contains(t, string(data), `"bridgeId":"b-1"`)
}

func TestInit_InvalidLevel(t *testing.T) {
	t.Cleanup(func() { Lg = zap.NewNop() })
	assert.Error(t, Init(&LogConfig{Level: "loud"}, "development"))
}
