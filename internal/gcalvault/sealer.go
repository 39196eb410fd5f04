package gcalvault

// Sealer encrypts small secrets, such as stored OAuth tokens, at rest.
type Sealer interface {
	// Seal encrypts plaintext.
	Seal(plaintext []byte) ([]byte, error)

	// Open decrypts data produced by Seal.
	Open(sealed []byte) ([]byte, error)

	// IsConfigured reports whether the key material exists.
	IsConfigured() bool
}
