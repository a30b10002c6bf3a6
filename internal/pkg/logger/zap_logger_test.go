package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerAttachesModuleAndDetails(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewFromZap(zap.New(core))

	l.Debug("MemoryService", "stored memory", map[string]interface{}{"scope": "user"})
	l.Error("ChatService", "completion failed", map[string]interface{}{"error": "boom"})
	l.Info("ChatService", "no details", nil)

	entries := logs.All()
	assert.Len(t, entries, 3)

	assert.Equal(t, "stored memory", entries[0].Message)
	assert.Equal(t, "MemoryService", entries[0].ContextMap()["module"])

	_, hasRef := entries[1].ContextMap()["error_ref"]
	assert.True(t, hasRef)

	assert.NotNil(t, entries[2].ContextMap()["details"])
}

func TestNopLoggerIsSilent(t *testing.T) {
	l := NewNopLogger()
	l.Warn("test", "nothing happens", nil)
	assert.NoError(t, l.Sync())
}
