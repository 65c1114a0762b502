package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dqx0.com/go/greeter/internal/config"
)

func TestNewWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWriter(&buf, config.LogConfig{Level: "warn", Format: "text"})
	require.NoError(t, err)
	l.Info("hidden")
	l.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown k=v")
}

func TestNewWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWriter(&buf, config.LogConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	l.Debug("hello", "name", "Alice")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "DEBUG", rec["level"])
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "Alice", rec["name"])
}

func TestNewWriter_Invalid(t *testing.T) {
	_, err := NewWriter(&bytes.Buffer{}, config.LogConfig{Level: "loud", Format: "text"})
	assert.Error(t, err)
	_, err = NewWriter(&bytes.Buffer{}, config.LogConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestNew_File(t *testing.T) {
	file := filepath.Join(t.TempDir(), "greeter.log")
	l, closer, err := New(config.LogConfig{Level: "info", Format: "text", File: file, MaxSizeMB: 1})
	require.NoError(t, err)
	l.Info("to file")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(b), "msg=\"to file\"")
}

func TestNew_Stderr(t *testing.T) {
	l, closer, err := New(config.LogConfig{Level: "error", Format: "text"})
	require.NoError(t, err)
	assert.NotNil(t, l)
	assert.NoError(t, closer.Close())
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), 12))
}
