// Package validator defines the pluggable delivery-validation boundary. The
// lifecycle manager calls Validate and acts only on the boolean outcome;
// whether the check is an automated rule, a human review, or a third-party
// confirmation is the implementation's business.
package validator

import (
	"context"

	"github.com/Mindburn-Labs/agora/pkg/contracts"
)

// Result is the outcome of validating a delivery.
type Result struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// Validator checks a delivered result.
type Validator interface {
	Validate(ctx context.Context, delivery *contracts.Delivery) (Result, error)
}

// Static approves or rejects everything, for tests and manual pipelines.
type Static struct {
	Approved bool
	Reason   string
}

func (s Static) Validate(_ context.Context, _ *contracts.Delivery) (Result, error) {
	return Result{Approved: s.Approved, Reason: s.Reason}, nil
}
