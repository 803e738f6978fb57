package registry

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// EnrollmentClaims bind an agent id to its registered key fingerprint. The
// token proves to transport-layer gateways that the agent completed
// registration; envelope signatures remain the per-message proof.
type EnrollmentClaims struct {
	jwt.RegisteredClaims
	PublicKey    string   `json:"public_key"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// TokenIssuer mints and validates enrollment tokens with the node's own
// Ed25519 key.
type TokenIssuer struct {
	priv   ed25519.PrivateKey
	pub    ed25519.PublicKey
	issuer string
}

func NewTokenIssuer(priv ed25519.PrivateKey, issuer string) *TokenIssuer {
	return &TokenIssuer{
		priv:   priv,
		pub:    priv.Public().(ed25519.PublicKey),
		issuer: issuer,
	}
}

// Issue mints an enrollment token for a registered agent.
func (t *TokenIssuer) Issue(a *Agent, validity time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := EnrollmentClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		PublicKey:    a.PublicKey,
		Capabilities: a.Capabilities,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(t.priv)
	if err != nil {
		return "", fmt.Errorf("sign enrollment token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies an enrollment token.
func (t *TokenIssuer) Validate(tokenString string) (*EnrollmentClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &EnrollmentClaims{},
		func(_ *jwt.Token) (any, error) { return t.pub, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(t.issuer),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*EnrollmentClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}
