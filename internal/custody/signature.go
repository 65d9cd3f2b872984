package custody

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const authorizationKeyPrefix = "wallet-auth:"

// ParseAuthorizationKey decodes a "wallet-auth:<base64 PKCS#8>" P-256 key.
// The prefix is optional.
func ParseAuthorizationKey(s string) (*ecdsa.PrivateKey, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), authorizationKeyPrefix)
	der, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("authorization key is not base64: %w", err)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("authorization key is not PKCS#8: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok || key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("authorization key must be an ECDSA P-256 key")
	}
	return key, nil
}

// signaturePayload is what the authorization signature covers.
type signaturePayload struct {
	Version int               `json:"version"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Body    json.RawMessage   `json:"body"`
	Headers map[string]string `json:"headers"`
}

// canonicalJSON re-encodes raw with object keys sorted and no insignificant
// whitespace or HTML escaping.
func canonicalJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// buildSignaturePayload returns the canonical bytes to sign for a request.
func buildSignaturePayload(method, url string, body []byte, headers map[string]string) ([]byte, error) {
	payload, err := json.Marshal(signaturePayload{
		Version: 1,
		Method:  method,
		URL:     url,
		Body:    body,
		Headers: headers,
	})
	if err != nil {
		return nil, err
	}
	return canonicalJSON(payload)
}

// sign returns the base64 DER ECDSA signature over sha256(payload).
func sign(key *ecdsa.PrivateKey, payload []byte) (string, error) {
	digest := sha256.Sum256(payload)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
