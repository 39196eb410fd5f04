package mirror

import (
	"context"
	"fmt"

	"gcalvault/internal/config"
	"gcalvault/internal/gcalvault"
)

// NewMirrorFromConfig creates a Mirror implementation based on the mirror config type.
// Type "none" yields a nil Mirror, which disables mirroring.
func NewMirrorFromConfig(ctx context.Context, cfg config.MirrorConfig) (gcalvault.Mirror, error) {
	name := cfg.Name
	if name == "" {
		name = cfg.Type
	}

	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryMirror(name), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem mirror requires fs_root to be set")
		}
		m, err := NewFileSystemMirror(name, cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "s3":
		m, err := NewS3Mirror(ctx, name, S3Options{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			UsePathStyle:    cfg.S3UsePathStyle,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown mirror type: %s", cfg.Type)
	}
}
