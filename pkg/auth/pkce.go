// Package auth implements authentication against the Legrand Home + Control
// identity provider (an Azure AD B2C tenant).
//
// The provider exposes no machine-friendly login API, only the interactive
// browser flow. This package simulates that flow: it fetches the login form,
// learns its anti-forgery token, submits credentials, follows the resulting
// redirect chain to harvest an authorization code, and exchanges the code for
// bearer/refresh tokens via PKCE. A token cache keeps the tokens fresh for
// the lifetime of the process.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// PKCEPair holds the verifier and derived challenge for one PKCE
// (Proof Key for Code Exchange) flow. A pair is scoped to a single
// login attempt and must never be reused across attempts.
type PKCEPair struct {
	Verifier  string
	Challenge string
}

// GeneratePKCE produces a fresh PKCE pair. The verifier is 32 bytes of
// cryptographically secure randomness, base64url-encoded without padding.
// The challenge is the base64url (no padding) SHA-256 digest of the
// verifier string as it will be transmitted to the token endpoint.
func GeneratePKCE() (PKCEPair, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return PKCEPair{}, fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(raw)
	return PKCEPair{
		Verifier:  verifier,
		Challenge: challengeFor(verifier),
	}, nil
}

// challengeFor derives the S256 challenge for a verifier.
func challengeFor(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// randomState produces the opaque state identifier carried through the
// authorize request.
func randomState() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
