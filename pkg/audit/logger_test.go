package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordWritesStructuredEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf)

	err := logger.Record(context.Background(), EventSecurity, "agent-1", "bid.rejected", "c-1",
		map[string]any{"status": "EXPIRED"})
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, EventSecurity, event.Type)
	assert.Equal(t, "agent-1", event.SenderID)
	assert.Equal(t, "bid.rejected", event.Action)
	assert.Equal(t, "c-1", event.Resource)
	assert.Equal(t, "EXPIRED", event.Metadata["status"])
	assert.False(t, event.Timestamp.IsZero())
}

func TestRecordOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf)

	require.NoError(t, logger.Record(context.Background(), EventMutation, "issuer-1", "contract.create", "c-1", nil))
	require.NoError(t, logger.Record(context.Background(), EventMutation, "issuer-1", "contract.award", "c-1", nil))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	assert.Len(t, lines, 2)
	for _, line := range lines {
		var event Event
		assert.NoError(t, json.Unmarshal(line, &event))
	}
}
