package contracts

import (
	"encoding/json"
	"time"
)

// MessageEnvelope wraps every bid, delivery, and announcement for transport.
// The signature covers the RFC 8785 canonical form of {payload, nonce,
// expires_at, sender_id}; a message past its expiry, or whose nonce was
// already accepted from the same sender, must be rejected before the payload
// is trusted.
type MessageEnvelope struct {
	Payload   json.RawMessage `json:"payload"`
	Nonce     string          `json:"nonce"`
	ExpiresAt time.Time       `json:"expires_at"`
	SenderID  string          `json:"sender_id"`
	PublicKey string          `json:"public_key"` // hex-encoded Ed25519
	Signature string          `json:"signature"`  // hex-encoded
}
