// Package auth resolves subscriber identity. Bearer tokens map to
// stable peer ids; everything else gets an anonymous id per connection.
package auth

import (
	"crypto/subtle"
	"errors"

	"github.com/google/uuid"
)

// ErrInvalidToken reports a presented token that matches no known peer.
var ErrInvalidToken = errors.New("auth: invalid token")

// Verifier resolves a bearer token to a peer id.
type Verifier interface {
	Verify(token string) (peerID string, err error)
}

// TokenVerifier checks tokens against a static table in constant time.
type TokenVerifier struct {
	tokens map[string]string
}

// NewTokenVerifier builds a verifier from a token -> peer id table.
func NewTokenVerifier(tokens map[string]string) *TokenVerifier {
	cp := make(map[string]string, len(tokens))
	for k, v := range tokens {
		cp[k] = v
	}
	return &TokenVerifier{tokens: cp}
}

// Verify returns the peer id for a known token, ErrInvalidToken otherwise.
func (v *TokenVerifier) Verify(token string) (string, error) {
	for known, peer := range v.tokens {
		if len(known) == len(token) &&
			subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return peer, nil
		}
	}
	return "", ErrInvalidToken
}

// Open admits every caller. Tokens are ignored; each connection gets an
// anonymous peer id.
type Open struct{}

func (Open) Verify(string) (string, error) {
	return AnonymousPeerID(), nil
}

// AnonymousPeerID mints a fresh anonymous peer identifier.
func AnonymousPeerID() string {
	return "anon-" + uuid.NewString()
}
