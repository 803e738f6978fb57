// Package broadcast defines the notification boundary. The core announces
// contract and award events; delivery to interested agents is the external
// layer's concern. A failed announcement never fails the operation that
// produced it.
package broadcast

import (
	"context"
	"log/slog"

	"github.com/Mindburn-Labs/agora/pkg/contracts"
)

// Broadcaster pushes a marketplace event to interested agents.
type Broadcaster interface {
	Announce(ctx context.Context, eventType contracts.EventType, payload any) error
}

// LogBroadcaster writes announcements to the structured log. Useful as the
// default sink and in tests.
type LogBroadcaster struct {
	logger *slog.Logger
}

func NewLogBroadcaster() *LogBroadcaster {
	return &LogBroadcaster{logger: slog.Default().With("component", "broadcast")}
}

func (b *LogBroadcaster) Announce(ctx context.Context, eventType contracts.EventType, payload any) error {
	b.logger.InfoContext(ctx, "announce", "event", string(eventType), "payload", payload)
	return nil
}

// Multi fans one announcement out to several broadcasters, returning the
// first error after attempting all of them.
type Multi []Broadcaster

func (m Multi) Announce(ctx context.Context, eventType contracts.EventType, payload any) error {
	var firstErr error
	for _, b := range m {
		if err := b.Announce(ctx, eventType, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
