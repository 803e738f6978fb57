// Package envelope seals and verifies the signed, replay-protected wrapper
// around every marketplace message. Verification is fail-closed: an expired
// envelope, a bad signature, or a reused nonce is a rejection, never a
// partial acceptance.
package envelope

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/agora/pkg/canonicalize"
	"github.com/Mindburn-Labs/agora/pkg/contracts"
	"github.com/Mindburn-Labs/agora/pkg/crypto"
)

// DefaultTTL is the envelope validity window applied by Seal.
const DefaultTTL = 5 * time.Minute

// nonceBytes yields a 128-bit single-use token.
const nonceBytes = 16

var (
	// ErrExpiredMessage rejects an envelope whose expiry has passed.
	ErrExpiredMessage = errors.New("envelope: message expired")
	// ErrInvalidSignature rejects an envelope whose signature does not verify.
	ErrInvalidSignature = errors.New("envelope: invalid signature")
	// ErrReplayedNonce rejects a nonce already accepted from the same sender.
	ErrReplayedNonce = errors.New("envelope: replayed nonce")
)

// signingBody is the exact structure covered by the signature. The canonical
// form fixes field ordering, so signer and verifier always agree byte for
// byte.
type signingBody struct {
	Payload   json.RawMessage `json:"payload"`
	Nonce     string          `json:"nonce"`
	ExpiresAt time.Time       `json:"expires_at"`
	SenderID  string          `json:"sender_id"`
}

// Sealer produces signed envelopes for one sender identity.
type Sealer struct {
	senderID string
	signer   crypto.Signer
	ttl      time.Duration
	clock    func() time.Time
}

// NewSealer creates a Sealer with the default 5 minute TTL.
func NewSealer(senderID string, signer crypto.Signer) *Sealer {
	return &Sealer{senderID: senderID, signer: signer, ttl: DefaultTTL, clock: time.Now}
}

// WithTTL overrides the validity window.
func (s *Sealer) WithTTL(ttl time.Duration) *Sealer {
	s.ttl = ttl
	return s
}

// WithClock overrides the clock for deterministic testing.
func (s *Sealer) WithClock(clock func() time.Time) *Sealer {
	s.clock = clock
	return s
}

// Seal wraps payload in a signed envelope with a fresh nonce and expiry.
func (s *Sealer) Seal(payload any) (*contracts.MessageEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal payload: %w", err)
	}

	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("envelope: nonce generation: %w", err)
	}
	nonce := hex.EncodeToString(buf)
	expiry := s.clock().UTC().Add(s.ttl)

	canonical, err := canonicalize.Canonicalize(signingBody{
		Payload:   raw,
		Nonce:     nonce,
		ExpiresAt: expiry,
		SenderID:  s.senderID,
	})
	if err != nil {
		return nil, err
	}
	sig, err := s.signer.Sign(canonical)
	if err != nil {
		return nil, fmt.Errorf("envelope: sign: %w", err)
	}

	return &contracts.MessageEnvelope{
		Payload:   raw,
		Nonce:     nonce,
		ExpiresAt: expiry,
		SenderID:  s.senderID,
		PublicKey: s.signer.PublicKey(),
		Signature: sig,
	}, nil
}

// Verifier checks envelopes against a keyring and a shared replay cache.
type Verifier struct {
	keyring *crypto.Keyring
	replay  ReplayCache
	clock   func() time.Time
}

// NewVerifier creates a Verifier. The replay cache is shared across all
// concurrent verifications.
func NewVerifier(keyring *crypto.Keyring, replay ReplayCache) *Verifier {
	return &Verifier{keyring: keyring, replay: replay, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (v *Verifier) WithClock(clock func() time.Time) *Verifier {
	v.clock = clock
	return v
}

// Verify checks expiry, signature, and nonce freshness, in that order, and
// returns the payload on success. Successful verification records the nonce
// so the identical envelope can never be accepted twice.
func (v *Verifier) Verify(ctx context.Context, env *contracts.MessageEnvelope) (json.RawMessage, error) {
	now := v.clock().UTC()
	if now.After(env.ExpiresAt) {
		return nil, ErrExpiredMessage
	}

	pubKey := env.PublicKey
	if registered, ok := v.keyring.Lookup(env.SenderID); ok {
		// A registered key always wins over the self-declared one.
		pubKey = registered
	}

	canonical, err := canonicalize.Canonicalize(signingBody{
		Payload:   env.Payload,
		Nonce:     env.Nonce,
		ExpiresAt: env.ExpiresAt,
		SenderID:  env.SenderID,
	})
	if err != nil {
		return nil, err
	}
	ok, err := crypto.Verify(pubKey, env.Signature, canonical)
	if err != nil || !ok {
		return nil, ErrInvalidSignature
	}

	fresh, err := v.replay.Record(ctx, env.SenderID, env.Nonce, env.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("envelope: replay cache: %w", err)
	}
	if !fresh {
		return nil, ErrReplayedNonce
	}
	return env.Payload, nil
}
