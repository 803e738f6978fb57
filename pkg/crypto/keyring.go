package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// DeriveSigner deterministically derives an agent signing key from a master
// seed via HKDF-SHA256, keyed by the agent id. The same (seed, agentID) pair
// always yields the same keypair, which makes demo and test fixtures
// reproducible without storing private keys.
func DeriveSigner(masterSeed []byte, agentID string) (*Ed25519Signer, error) {
	if len(masterSeed) < 16 {
		return nil, fmt.Errorf("master seed too short: %d bytes", len(masterSeed))
	}
	kdf := hkdf.New(sha256.New, masterSeed, []byte("agora/agent-keys"), []byte(agentID))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(kdf, seed); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return NewEd25519SignerFromKey(ed25519.NewKeyFromSeed(seed), agentID), nil
}

// Keyring maps agent ids to their registered public keys. The envelope
// verifier consults it to resolve the expected key for a sender.
type Keyring struct {
	mu   sync.RWMutex
	keys map[string]string // agentID -> hex public key
}

func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[string]string)}
}

// Register records or replaces the public key for an agent.
func (k *Keyring) Register(agentID, pubKeyHex string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[agentID] = pubKeyHex
}

// Lookup returns the registered public key for an agent.
func (k *Keyring) Lookup(agentID string) (string, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[agentID]
	return key, ok
}
