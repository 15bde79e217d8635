package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	log := New(Options{FilePath: path, Level: "warn", Prod: true})

	log.Info("dropped")
	log.Warn("cache write dropped", zap.String("key", "analysis:b-1"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"message":"cache write dropped"`)
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"key":"analysis:b-1"`)
	assert.Contains(t, out, `"timestamp"`)
	assert.NotContains(t, out, `"message":"dropped"`)
}

func TestLevels(t *testing.T) {
	tests := []struct {
		level string
		debug bool
		info  bool
	}{
		{level: "", debug: false, info: true},
		{level: "debug", debug: true, info: true},
		{level: "error", debug: false, info: false},
		{level: "bogus", debug: false, info: true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			core := New(Options{Level: tt.level}).Core()
			assert.Equal(t, tt.debug, core.Enabled(zap.DebugLevel))
			assert.Equal(t, tt.info, core.Enabled(zap.InfoLevel))
		})
	}
}
