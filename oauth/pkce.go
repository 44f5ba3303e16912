package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// pkceVerifierAlphabet is RFC 7636's unreserved character set for a code
// verifier, matching PKCEManager._generate_code_verifier's alphabet.
const pkceVerifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

// pkceVerifierLength matches conduit's PKCEManager, which always
// generates a verifier at RFC 7636's maximum length (128) rather than
// the RFC-allowed minimum (43), giving every flow the same entropy.
const pkceVerifierLength = 128

// GeneratePKCE produces a fresh verifier/challenge pair using the S256
// method, grounded on PKCEManager.generate_parameters.
func GeneratePKCE() (PKCEParameters, error) {
	verifier, err := generateCodeVerifier()
	if err != nil {
		return PKCEParameters{}, err
	}
	p := PKCEParameters{
		CodeVerifier:        verifier,
		CodeChallenge:       generateCodeChallenge(verifier),
		CodeChallengeMethod: "S256",
	}
	if err := p.validate(); err != nil {
		return PKCEParameters{}, err
	}
	return p, nil
}

func generateCodeVerifier() (string, error) {
	buf := make([]byte, pkceVerifierLength)
	idx := make([]byte, pkceVerifierLength)
	if _, err := rand.Read(idx); err != nil {
		return "", err
	}
	for i, b := range idx {
		buf[i] = pkceVerifierAlphabet[int(b)%len(pkceVerifierAlphabet)]
	}
	return string(buf), nil
}

func generateCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// generateState mints a CSRF state parameter, grounded on
// services/security.py's generate_state (32 characters from the same
// unreserved alphabet PKCE verifiers use).
func generateState() (string, error) {
	const length = 32
	idx := make([]byte, length)
	if _, err := rand.Read(idx); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	for i, b := range idx {
		buf[i] = pkceVerifierAlphabet[int(b)%len(pkceVerifierAlphabet)]
	}
	return string(buf), nil
}
