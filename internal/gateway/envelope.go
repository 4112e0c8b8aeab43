package gateway

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is the generic response wrapper used by the backend services.
// When Handshake is present the data payload is encrypted and must be opened
// with the session cipher before use.
type Envelope struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data,omitempty"`
	Handshake string          `json:"handshake,omitempty"`
	Message   string          `json:"message,omitempty"`
}

const (
	envelopeStatusSuccess = "SUCCESS"
	envelopeStatusError   = "ERROR"
)

var ErrEnvelopeRejected = errors.New("upstream rejected request")

// Cipher opens encrypted envelope payloads. The handshake value carries the
// per-response nonce material.
type Cipher interface {
	Open(handshake string, payload []byte) ([]byte, error)
}

// OpenEnvelope unwraps an envelope into its decoded data payload.
func OpenEnvelope(env Envelope, c Cipher) ([]byte, error) {
	if env.Status == envelopeStatusError {
		if env.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrEnvelopeRejected, env.Message)
		}
		return nil, ErrEnvelopeRejected
	}
	if env.Status != envelopeStatusSuccess {
		return nil, fmt.Errorf("unexpected envelope status %q", env.Status)
	}
	if env.Handshake == "" {
		return env.Data, nil
	}
	if c == nil {
		return nil, errors.New("envelope carries handshake but no cipher is configured")
	}

	// Encrypted payloads arrive as a base64 JSON string.
	var encoded string
	if err := json.Unmarshal(env.Data, &encoded); err != nil {
		return nil, fmt.Errorf("decode encrypted payload: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode encrypted payload: %w", err)
	}
	return c.Open(env.Handshake, ciphertext)
}

// AESGCMCipher opens payloads sealed with AES-256-GCM. The handshake value is
// the base64-encoded nonce.
type AESGCMCipher struct {
	aead cipher.AEAD
}

func NewAESGCMCipher(key []byte) (*AESGCMCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init envelope cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init envelope cipher: %w", err)
	}
	return &AESGCMCipher{aead: aead}, nil
}

func (c *AESGCMCipher) Open(handshake string, payload []byte) ([]byte, error) {
	nonce, err := base64.StdEncoding.DecodeString(handshake)
	if err != nil {
		return nil, fmt.Errorf("decode handshake nonce: %w", err)
	}
	if len(nonce) != c.aead.NonceSize() {
		return nil, fmt.Errorf("handshake nonce is %d bytes, want %d", len(nonce), c.aead.NonceSize())
	}
	plain, err := c.aead.Open(nil, nonce, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("open envelope payload: %w", err)
	}
	return plain, nil
}
