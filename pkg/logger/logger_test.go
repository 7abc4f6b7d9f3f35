package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileSinkSharedByZapAndLogrus(t *testing.T) {
	cfg := LogConfig{Level: "info", Filename: filepath.Join(t.TempDir(), "agent.log"), MaxSize: 1}
	require.NoError(t, Init(cfg))
	t.Cleanup(func() {
		Lg = zap.NewNop()
		sinkMu.Lock()
		if sink != nil {
			_ = sink.Close()
			sink = nil
		}
		sinkMu.Unlock()
	})

	lr := NewLogrus(cfg)
	assert.Same(t, sink, lr.Out)

	Info("from zap")
	lr.Info("from logrus")
	Sync()

	data, err := os.ReadFile(cfg.Filename)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "from zap")
	assert.Contains(t, lines[1], "from logrus")
}

func TestNewLogrusWithoutFileKeepsStderr(t *testing.T) {
	lr := NewLogrus(LogConfig{Level: "debug"})

	assert.Equal(t, os.Stderr, lr.Out)
	assert.Equal(t, "debug", lr.GetLevel().String())
}
