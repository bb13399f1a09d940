package domain

// Algorithm represents the cryptographic algorithm used for encryption.
//
// All supported algorithms provide Authenticated Encryption with Associated Data (AEAD)
// with a 256-bit key. The algorithm is recorded next to every ciphertext so data sealed
// under one algorithm stays readable after the configured default changes.
type Algorithm string

const (
	// AESGCM represents the AES-256-GCM authenticated encryption algorithm.
	// 12-byte nonce, 16-byte tag, hardware accelerated on CPUs with AES-NI.
	AESGCM Algorithm = "aes-gcm"

	// ChaCha20 represents the ChaCha20-Poly1305 authenticated encryption algorithm.
	// 12-byte nonce, 16-byte tag, constant-time software implementation.
	ChaCha20 Algorithm = "chacha20-poly1305"

	// XChaCha20 represents the XChaCha20-Poly1305 authenticated encryption algorithm.
	// Its 24-byte nonce makes random nonces safe for a very large number of messages per key.
	XChaCha20 Algorithm = "xchacha20-poly1305"
)

// Valid reports whether a is a supported algorithm.
func (a Algorithm) Valid() bool {
	switch a {
	case AESGCM, ChaCha20, XChaCha20:
		return true
	default:
		return false
	}
}

// KekStatus is the lifecycle state of a Key Encryption Key.
//
//	active     -> used to wrap new DEKs; exactly one per scope
//	deprecated -> still unwraps existing DEKs, never wraps new ones
//	revoked    -> unusable; only allowed once no blob references the KEK
type KekStatus string

const (
	KekActive     KekStatus = "active"
	KekDeprecated KekStatus = "deprecated"
	KekRevoked    KekStatus = "revoked"
)

// CanUnwrap reports whether a KEK in this state may unwrap DEKs.
func (s KekStatus) CanUnwrap() bool {
	return s == KekActive || s == KekDeprecated
}

// GlobalScope is the KEK scope shared by every tenant without a dedicated KEK.
const GlobalScope = ""
