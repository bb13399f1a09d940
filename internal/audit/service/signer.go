// Package service provides the audit entry signer.
package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	auditDomain "github.com/allisson/credstore/internal/audit/domain"
	cryptoDomain "github.com/allisson/credstore/internal/crypto/domain"
)

// signingInfo is the HKDF info label; bump the version when the canonical form changes.
const signingInfo = "audit-log-signing-v1"

// Signer computes and checks audit entry signatures.
type Signer interface {
	// Sign returns the HMAC-SHA256 of the entry's canonical form under a key derived from rootKey.
	Sign(rootKey []byte, entry *auditDomain.Entry) ([]byte, error)

	// Verify returns ErrSignatureInvalid when the entry's signature does not match.
	Verify(rootKey []byte, entry *auditDomain.Entry) error
}

type hmacSigner struct{}

// NewSigner creates an HKDF-SHA256 / HMAC-SHA256 audit signer.
func NewSigner() Signer {
	return &hmacSigner{}
}

func (s *hmacSigner) deriveSigningKey(rootKey []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, rootKey, nil, []byte(signingInfo))

	signingKey := make([]byte, 32)
	if _, err := io.ReadFull(reader, signingKey); err != nil {
		return nil, err
	}
	return signingKey, nil
}

// canonicalize encodes the signed fields: id || tenant || actor || operation ||
// secret id || secret type || outcome || error code || trace id || created_at.
// Strings are length-prefixed so no two entries share an encoding.
func (s *hmacSigner) canonicalize(entry *auditDomain.Entry) []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, entry.ID[:]...)
	for _, field := range []string{
		entry.TenantID,
		entry.ActorID,
		string(entry.Operation),
		entry.SecretID,
		entry.SecretTypeID,
		string(entry.Outcome),
		entry.ErrorCode,
		entry.TraceID,
	} {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(field)))
		buf = append(buf, field...)
	}
	return binary.BigEndian.AppendUint64(buf, uint64(entry.CreatedAt.UnixNano()))
}

func (s *hmacSigner) Sign(rootKey []byte, entry *auditDomain.Entry) ([]byte, error) {
	signingKey, err := s.deriveSigningKey(rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}
	defer cryptoDomain.Zero(signingKey)

	mac := hmac.New(sha256.New, signingKey)
	mac.Write(s.canonicalize(entry))
	return mac.Sum(nil), nil
}

func (s *hmacSigner) Verify(rootKey []byte, entry *auditDomain.Entry) error {
	expected, err := s.Sign(rootKey, entry)
	if err != nil {
		return fmt.Errorf("failed to compute expected signature: %w", err)
	}
	if !hmac.Equal(entry.Signature, expected) {
		return auditDomain.ErrSignatureInvalid
	}
	return nil
}
