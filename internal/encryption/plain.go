package encryption

import (
	"bytes"
	"fmt"

	"gcalvault/internal/gcalvault"
)

// testHeader is prepended by TestSealer so sealed output differs from plaintext
// while remaining deterministic and reversible.
var testHeader = []byte("GCVENC\x00\x00")

// TestSealer is a deterministic, reversible sealer for tests. It is not encryption.
type TestSealer struct{}

var _ gcalvault.Sealer = (*TestSealer)(nil)

func NewTestSealer() *TestSealer {
	return &TestSealer{}
}

func (*TestSealer) Seal(plaintext []byte) ([]byte, error) {
	return append(append([]byte{}, testHeader...), plaintext...), nil
}

func (*TestSealer) Open(sealed []byte) ([]byte, error) {
	if !bytes.HasPrefix(sealed, testHeader) {
		return nil, fmt.Errorf("invalid test seal header")
	}
	return append([]byte{}, sealed[len(testHeader):]...), nil
}

func (*TestSealer) IsConfigured() bool { return true }
