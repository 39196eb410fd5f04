package encryption

import (
	"fmt"

	"gcalvault/internal/config"
	"gcalvault/internal/gcalvault"
)

// NewSealerFromConfig creates the token sealer for the configured encryption.
// It returns nil for "none", which stores tokens as plain JSON.
func NewSealerFromConfig(cfg config.CredentialsConfig) (gcalvault.Sealer, error) {
	switch cfg.Encryption {
	case "none", "":
		return nil, nil
	case "age":
		if cfg.KeyPath == "" {
			return nil, fmt.Errorf("key_path required for age encryption")
		}
		return NewAgeSealer(cfg.KeyPath), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Encryption)
	}
}
