package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestReplaceRestores(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := Replace(zap.New(core))

	Named("scheduler").Info("task ran", String("id", "t1"), Int("runs", 2))
	Warn("slow save", Duration("took", 0))

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "scheduler", entries[0].LoggerName)
		assert.Equal(t, "t1", entries[0].ContextMap()["id"])
		assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	}

	restore()
	Info("after restore")
	assert.Equal(t, 2, logs.Len())
}

func TestInitAndSetLevel(t *testing.T) {
	restore := Replace(nil)
	defer restore()

	assert.NoError(t, Init(Config{Level: "warn", Format: "console", OutputPath: "stderr"}))
	assert.False(t, L().Core().Enabled(zapcore.InfoLevel))

	SetLevel("debug")
	assert.True(t, L().Core().Enabled(zapcore.DebugLevel))

	// Unknown levels are ignored
	SetLevel("chatty")
	assert.True(t, L().Core().Enabled(zapcore.DebugLevel))
	SetLevel("info")
}

func TestLBeforeInit(t *testing.T) {
	restore := Replace(nil)
	defer restore()
	assert.NotNil(t, L())
	assert.NotNil(t, S())
}
