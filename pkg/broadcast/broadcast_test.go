package broadcast

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/agora/pkg/contracts"
)

// recorder captures announcements.
type recorder struct {
	events []contracts.EventType
	err    error
}

func (r *recorder) Announce(_ context.Context, eventType contracts.EventType, _ any) error {
	r.events = append(r.events, eventType)
	return r.err
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, b}

	require.NoError(t, m.Announce(context.Background(), contracts.EventContractCreated, "payload"))
	assert.Equal(t, []contracts.EventType{contracts.EventContractCreated}, a.events)
	assert.Equal(t, []contracts.EventType{contracts.EventContractCreated}, b.events)
}

func TestMultiAttemptsAllDespiteError(t *testing.T) {
	failing := &recorder{err: errors.New("sink down")}
	healthy := &recorder{}
	m := Multi{failing, healthy}

	err := m.Announce(context.Background(), contracts.EventBidReceived, nil)
	assert.Error(t, err)
	assert.Len(t, healthy.events, 1, "later sinks still receive the event")
}

func TestLogBroadcaster(t *testing.T) {
	b := NewLogBroadcaster()
	assert.NoError(t, b.Announce(context.Background(), contracts.EventContractSettled, map[string]string{"id": "c-1"}))
}
