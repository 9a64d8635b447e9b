package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestInit(t *testing.T) {
	Init("debug", "console")
	assert.NotNil(t, L())
	Init("info", "json")
}

func TestInfo(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "info")

	Info("hold created", "slot_id", 42, "transaction_id", int64(7))

	entry := decodeLine(t, &buf)
	assert.Equal(t, "hold created", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, float64(42), entry["slot_id"])
	assert.Equal(t, float64(7), entry["transaction_id"])
}

func TestError_WithErrValue(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "info")

	Error("webhook rejected", "error", errors.New("unknown payment"))

	entry := decodeLine(t, &buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "unknown payment", entry["error"])
}

func TestDebug_FilteredByLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "info")

	Debug("not visible")
	assert.Empty(t, buf.String())

	SetOutput(&buf, "debug")
	Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestInfof(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "info")

	Infof("server starting on port %s", "8080")

	assert.Contains(t, buf.String(), "server starting on port 8080")
}

func TestOddKeyValues(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "info")

	Warn("dangling", "key")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "", entry["key"])
}
