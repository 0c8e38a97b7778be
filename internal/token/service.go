// Package token issues and verifies the join tokens embedded in rendered
// live containers. A token binds the module name, the page session, and a
// digest of the initial props, so the server can validate a join before
// spawning an actor. Tokens are deliberately reusable within their TTL: a
// reconnecting client rejoins with the token from its original markup.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config tunes the service.
type Config struct {
	TTL time.Duration
}

// DefaultConfig returns the default token lifetime.
func DefaultConfig() *Config {
	return &Config{TTL: 24 * time.Hour}
}

// Claims is the join token payload.
type Claims struct {
	Module      string          `json:"module"`
	Session     string          `json:"session"`
	Props       json.RawMessage `json:"props,omitempty"`
	PropsDigest string          `json:"digest"`
	jwt.RegisteredClaims
}

// Service signs and verifies join tokens. The signing key is generated per
// process; restarting the server invalidates outstanding tokens, which
// simply forces full page loads.
type Service struct {
	signingKey []byte
	method     jwt.SigningMethod
	config     *Config
}

// NewService creates a service with a fresh random signing key.
func NewService(config *Config) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return &Service{
		signingKey: key,
		// Pinned to HS256 so a forged header cannot downgrade verification.
		method: jwt.SigningMethodHS256,
		config: config,
	}, nil
}

// Issue signs a token for one rendered container.
func (s *Service) Issue(module, session string, props json.RawMessage) (string, error) {
	now := time.Now()
	claims := &Claims{
		Module:      module,
		Session:     session,
		Props:       props,
		PropsDigest: Digest(props),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "livewire",
			Subject:   module,
		},
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign join token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, lifetime, module binding, and props integrity,
// returning the claims on success.
func (s *Service) Verify(tokenString, module string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != s.method {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse join token: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("join token claims invalid")
	}
	if claims.Module != module {
		return nil, fmt.Errorf("join token bound to module %q, join names %q", claims.Module, module)
	}
	if claims.PropsDigest != Digest(claims.Props) {
		return nil, fmt.Errorf("join token props digest mismatch")
	}
	return claims, nil
}

// Digest is the canonical props fingerprint carried in tokens.
func Digest(props json.RawMessage) string {
	sum := sha256.Sum256(props)
	return hex.EncodeToString(sum[:])
}
