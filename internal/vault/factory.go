package vault

import (
	"fmt"

	"gcalvault/internal/config"
	"gcalvault/internal/gcalvault"
)

// NewVaultFromConfig creates a Vault for the output directory based on the vault config type.
// Type "none" yields a nil Vault, which runs the sync in export-only mode.
func NewVaultFromConfig(cfg config.VaultConfig, outputDir string, clock gcalvault.Clock, logger gcalvault.Logger) (gcalvault.Vault, error) {
	switch cfg.Type {
	case "", "git":
		if outputDir == "" {
			return nil, gcalvault.WrapErrorf(gcalvault.ErrConfiguration, "git vault requires an output directory")
		}
		v, err := NewGitVault("git", outputDir, []string{gcalvault.FileExtension}, Options{
			SSHKeyPath:  cfg.SSHKeyPath,
			AuthorName:  cfg.AuthorName,
			AuthorEmail: cfg.AuthorEmail,
			Clock:       clock,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		return v, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
