// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrCredentialRoom is returned when a valid credential names a different room.
var ErrCredentialRoom = errors.New("credential is bound to another room")

// HostClaims is the payload of a host credential: the identity it was issued to
// and the room it grants mutation rights on.
type HostClaims struct {
	Room string `json:"room"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies host credentials with a process-local ed25519 key.
// Credentials do not survive a restart, and neither do rooms.
type Issuer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	ttl        time.Duration
}

// NewIssuer generates a fresh ed25519 key pair. ttl <= 0 means credentials never expire.
func NewIssuer(ttl time.Duration) (*Issuer, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Issuer{privateKey: priv, publicKey: pub, ttl: ttl}, nil
}

// CreateHostCredential issues a signed token with sub = identity, room = code.
func (i *Issuer) CreateHostCredential(identity, code string) (string, error) {
	now := time.Now()
	claims := HostClaims{
		Room: code,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  identity,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(i.privateKey)
}

// AuthenticateHostCredential verifies tokenString and checks it is bound to code.
// It returns the identity the credential was issued to.
func (i *Issuer) AuthenticateHostCredential(tokenString, code string) (string, error) {
	claims := &HostClaims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}
	if claims.Room != code {
		return "", ErrCredentialRoom
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return claims.Subject, nil
}
