// Package registry manages agent identities: registered public keys,
// declared capabilities, and protocol compatibility. The capability lookup
// is the eligible-bidder pool consumed by the lifecycle manager; semantic
// ranking beyond the capability filter is an external service.
package registry

import (
	"context"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/Mindburn-Labs/agora/pkg/contracts"
)

// Agent is a registered marketplace participant.
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PublicKey    string    `json:"public_key"` // hex-encoded Ed25519
	Capabilities []string  `json:"capabilities,omitempty"`
	Version      string    `json:"version"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Registry persists agents and answers capability lookups.
type Registry interface {
	Register(ctx context.Context, a *Agent) error
	Get(ctx context.Context, id string) (*Agent, error)
	ListByCapability(ctx context.Context, capability string) ([]*Agent, error)
}

// ValidateAgent checks registration input before persistence.
func ValidateAgent(a *Agent) error {
	if a.ID == "" {
		return &contracts.ValidationError{Field: "id", Message: "required"}
	}
	if a.PublicKey == "" {
		return &contracts.ValidationError{Field: "public_key", Message: "required"}
	}
	if a.Version != "" {
		if _, err := semver.NewVersion(a.Version); err != nil {
			return &contracts.ValidationError{Field: "version", Message: "must be semver"}
		}
		if !contracts.CompatibleVersion(a.Version) {
			return &contracts.ValidationError{Field: "version", Message: "incompatible protocol major version"}
		}
	}
	return nil
}
