// Package integrity provides cryptographic checksums and signatures for the
// published export documents so downstream consumers can detect tampering.
package integrity

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// Checksums carries the redundant payload hashes.
type Checksums struct {
	SHA256    string `json:"sha256"`
	Keccak256 string `json:"keccak256"`
	Timestamp string `json:"timestamp"`
}

// Wrapper is a tamper-evident envelope around an export payload. Signature
// and PublicKey are present only for signed documents.
type Wrapper struct {
	Payload   json.RawMessage `json:"payload"`
	Integrity Checksums       `json:"integrity"`
	Signature string          `json:"signature,omitempty"`
	PublicKey string          `json:"public_key,omitempty"`
}

// Signer wraps and signs export payloads with a secp256k1 key, using the
// Ethereum signature scheme so hashes can also be verified on-chain.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	publicKey  string
}

// NewSigner creates a signer from a hex-encoded private key, or with a fresh
// ephemeral key when hexKey is empty.
func NewSigner(hexKey string) (*Signer, error) {
	var (
		key *ecdsa.PrivateKey
		err error
	)
	if hexKey == "" {
		key, err = crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("error generating signing key: %w", err)
		}
		logrus.Warn("No signing key configured, using ephemeral key")
	} else {
		key, err = crypto.HexToECDSA(hexKey)
		if err != nil {
			return nil, fmt.Errorf("error parsing signing key: %w", err)
		}
	}

	s := &Signer{
		privateKey: key,
		publicKey:  fmt.Sprintf("0x%x", crypto.FromECDSAPub(&key.PublicKey)),
	}
	logrus.Infof("Export signer initialized, public key %s...", s.publicKey[:18])
	return s, nil
}

// PublicKey returns the hex-encoded public key of the signer.
func (s *Signer) PublicKey() string {
	return s.publicKey
}

// Checksum computes the redundant hashes over the canonical JSON encoding of
// the payload.
func Checksum(payload any) (Checksums, json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Checksums{}, nil, fmt.Errorf("error marshaling payload: %w", err)
	}
	return Checksums{
		SHA256:    fmt.Sprintf("%x", sha256.Sum256(data)),
		Keccak256: crypto.Keccak256Hash(data).Hex(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, data, nil
}

// Wrap envelopes the payload with checksums only (no signature).
func Wrap(payload any) (Wrapper, error) {
	sums, data, err := Checksum(payload)
	if err != nil {
		return Wrapper{}, err
	}
	return Wrapper{Payload: data, Integrity: sums}, nil
}

// Wrap envelopes the payload with checksums and an ECDSA signature over its
// keccak256 hash.
func (s *Signer) Wrap(payload any) (Wrapper, error) {
	sums, data, err := Checksum(payload)
	if err != nil {
		return Wrapper{}, err
	}

	sig, err := crypto.Sign(crypto.Keccak256(data), s.privateKey)
	if err != nil {
		return Wrapper{}, fmt.Errorf("error signing payload: %w", err)
	}

	return Wrapper{
		Payload:   data,
		Integrity: sums,
		Signature: fmt.Sprintf("0x%x", sig),
		PublicKey: s.publicKey,
	}, nil
}

// Verify recomputes the payload hashes and, for signed wrappers, recovers the
// signing key from the signature and compares it to the declared public key.
// The payload is compacted first: hashes are always over the canonical
// encoding, so pretty-printed documents still verify.
func Verify(w Wrapper) error {
	if len(w.Payload) == 0 {
		return fmt.Errorf("wrapper has no payload")
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, w.Payload); err != nil {
		return fmt.Errorf("error compacting payload: %w", err)
	}
	payload := buf.Bytes()

	actualSHA := fmt.Sprintf("%x", sha256.Sum256(payload))
	if w.Integrity.SHA256 != actualSHA {
		return fmt.Errorf("sha256 mismatch: expected %s, got %s", w.Integrity.SHA256, actualSHA)
	}
	actualKeccak := crypto.Keccak256Hash(payload).Hex()
	if w.Integrity.Keccak256 != actualKeccak {
		return fmt.Errorf("keccak256 mismatch: expected %s, got %s", w.Integrity.Keccak256, actualKeccak)
	}

	if w.Signature == "" {
		return nil
	}

	var sig []byte
	if _, err := fmt.Sscanf(w.Signature, "0x%x", &sig); err != nil {
		return fmt.Errorf("error decoding signature: %w", err)
	}
	recovered, err := crypto.SigToPub(crypto.Keccak256(payload), sig)
	if err != nil {
		return fmt.Errorf("error recovering public key: %w", err)
	}

	var declared []byte
	if _, err := fmt.Sscanf(w.PublicKey, "0x%x", &declared); err != nil {
		return fmt.Errorf("error decoding public key: %w", err)
	}
	if !bytes.Equal(crypto.FromECDSAPub(recovered), declared) {
		return fmt.Errorf("signature does not match declared public key")
	}
	return nil
}
