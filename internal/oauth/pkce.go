// Package oauth implements the OAuth 2.0 connection flows for Twitter and
// LinkedIn, including PKCE per RFC 7636.
package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// verifierBytes is the entropy behind a code verifier. 48 random bytes
// base64url-encode to 64 characters, inside the 43-128 range RFC 7636
// section 4.1 allows.
const verifierBytes = 48

// GenerateCodeVerifier returns a cryptographically random code verifier.
func GenerateCodeVerifier() (string, error) {
	buf := make([]byte, verifierBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CodeChallenge derives the S256 code challenge for a verifier:
// BASE64URL(SHA256(ASCII(verifier))), unpadded.
func CodeChallenge(verifier string) string {
	digest := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}
