package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"gcalvault/internal/gcalvault"
)

// Built-in OAuth client, injected at build time with
// -ldflags "-X gcalvault/internal/config.DefaultClientID=... -X gcalvault/internal/config.DefaultClientSecret=...".
var (
	DefaultClientID     = ""
	DefaultClientSecret = ""
)

// Names of the files kept in the conf dir.
const (
	FileName         = "config.toml"
	ClientIDFile     = ".client-id"
	ClientSecretFile = ".client-secret"
	tokenKeyFile     = "token.key"
	etagsFile        = "etags.json"
	databaseFile     = "gcalvault.db"
)

// Commands that may be configured as the default command.
var Commands = []string{"sync", "clean-sync", "test"}

// Config represents the main configuration for gcalvault.
type Config struct {
	Email        string `toml:"email"`
	Command      string `toml:"command"`
	RootDir      string `toml:"root_dir"`
	ConfDir      string `toml:"conf_dir"`
	OutputDir    string `toml:"output_dir"`
	LogDir       string `toml:"log_dir"`
	ClientID     string `toml:"client_id,omitempty"`
	ClientSecret string `toml:"client_secret,omitempty"`

	Sync        SyncConfig        `toml:"sync"`
	Calendars   []CalendarConfig  `toml:"calendars"`
	Credentials CredentialsConfig `toml:"credentials"`
	Changes     ChangesConfig     `toml:"changes"`
	Database    DatabaseConfig    `toml:"database"`
	Vault       VaultConfig       `toml:"vault"`
	Mirror      MirrorConfig      `toml:"mirror"`
}

// SyncConfig holds the settings of a sync pass.
type SyncConfig struct {
	IgnoreRoles  []string `toml:"ignore_roles"`
	AlwaysUpdate bool     `toml:"always_update"`
	Push         bool     `toml:"push"`
	ExportOnly   bool     `toml:"export_only"`
	Timeout      string   `toml:"timeout,omitempty"` // Go duration, empty for no limit
}

// CalendarConfig is one calendar selected for backup.
type CalendarConfig struct {
	ID         string `toml:"id"`
	Name       string `toml:"name"`
	AccessRole string `toml:"access_role"`
}

// CredentialsConfig controls where and how OAuth tokens are stored.
type CredentialsConfig struct {
	Dir        string `toml:"dir"`
	Encryption string `toml:"encryption"`         // "none" (default) or "age"
	KeyPath    string `toml:"key_path,omitempty"` // only used for encryption=age
	Authorizer string `toml:"authorizer"`         // "loopback" (default) or "prompt"
}

// ChangesConfig represents configuration for the version tag store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ChangesConfig struct {
	Type string `toml:"type"`           // "sqlite", "file" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=file
}

// DatabaseConfig represents configuration for the sqlite database.
type DatabaseConfig struct {
	Type string `toml:"type"`           // "sqlite" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
}

// VaultConfig represents configuration for the git vault.
type VaultConfig struct {
	Type        string `toml:"type"` // "git" or "none"
	SSHKeyPath  string `toml:"ssh_key_path"`
	AuthorName  string `toml:"author_name"`
	AuthorEmail string `toml:"author_email"`
}

// MirrorConfig represents configuration for the optional mirror.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type MirrorConfig struct {
	Type string `toml:"type"` // "none", "memory", "filesystem" or "s3"
	Name string `toml:"name,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
	S3UsePathStyle    bool   `toml:"s3_use_path_style,omitempty"`
}

// NewConfig creates a Config rooted at rootDir with every field defaulted.
func NewConfig(rootDir, logDir string) *Config {
	cfg := &Config{RootDir: rootDir, LogDir: logDir}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field, deriving paths from RootDir.
func (c *Config) ApplyDefaults() {
	if c.Command == "" {
		c.Command = "sync"
	}
	if c.ConfDir == "" {
		c.ConfDir = filepath.Join(c.RootDir, "conf")
	}
	if c.OutputDir == "" {
		c.OutputDir = filepath.Join(c.RootDir, "output")
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(c.RootDir, "log")
	}
	if c.Sync.IgnoreRoles == nil {
		c.Sync.IgnoreRoles = []string{}
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}

	if c.Credentials.Dir == "" {
		c.Credentials.Dir = c.ConfDir
	}
	if c.Credentials.Encryption == "" {
		c.Credentials.Encryption = "none"
	}
	if c.Credentials.KeyPath == "" {
		c.Credentials.KeyPath = filepath.Join(c.ConfDir, tokenKeyFile)
	}
	if c.Credentials.Authorizer == "" {
		c.Credentials.Authorizer = "loopback"
	}

	if c.Changes.Type == "" {
		c.Changes.Type = "sqlite"
	}
	if c.Changes.Path == "" {
		c.Changes.Path = filepath.Join(c.ConfDir, etagsFile)
	}

	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.ConfDir, databaseFile)
	}

	if c.Vault.Type == "" {
		c.Vault.Type = "git"
	}
	if c.Vault.SSHKeyPath == "" {
		c.Vault.SSHKeyPath = filepath.Join(c.RootDir, "ssh-key")
	}
	if c.Vault.AuthorName == "" {
		c.Vault.AuthorName = "gcalvault"
	}
	if c.Vault.AuthorEmail == "" {
		c.Vault.AuthorEmail = "gcalvault@localhost"
	}

	if c.Mirror.Type == "" {
		c.Mirror.Type = "none"
	}
}

// SetConfDir moves the conf dir. Paths that were derived from the previous
// conf dir follow it; paths set to anything else are kept.
func (c *Config) SetConfDir(dir string) {
	old := c.ConfDir
	rebase := func(p *string, name string) {
		if *p == "" || *p == filepath.Join(old, name) {
			*p = filepath.Join(dir, name)
		}
	}
	c.ConfDir = dir
	if c.Credentials.Dir == "" || c.Credentials.Dir == old {
		c.Credentials.Dir = dir
	}
	rebase(&c.Credentials.KeyPath, tokenKeyFile)
	rebase(&c.Changes.Path, etagsFile)
	rebase(&c.Database.Path, databaseFile)
}

// Validate rejects values no component accepts.
func (c *Config) Validate() error {
	if !contains(Commands, c.Command) {
		return gcalvault.WrapErrorf(gcalvault.ErrConfiguration, "unknown default command %q (want one of %s)", c.Command, strings.Join(Commands, ", "))
	}
	if _, err := c.SyncTimeout(); err != nil {
		return err
	}
	checks := []struct {
		field   string
		value   string
		allowed []string
	}{
		{"credentials.encryption", c.Credentials.Encryption, []string{"none", "age"}},
		{"credentials.authorizer", c.Credentials.Authorizer, []string{"loopback", "prompt"}},
		{"changes.type", c.Changes.Type, []string{"sqlite", "file", "memory"}},
		{"database.type", c.Database.Type, []string{"sqlite", "memory"}},
		{"vault.type", c.Vault.Type, []string{"git", "none"}},
		{"mirror.type", c.Mirror.Type, []string{"none", "memory", "filesystem", "s3"}},
	}
	for _, chk := range checks {
		if !contains(chk.allowed, chk.value) {
			return gcalvault.WrapErrorf(gcalvault.ErrConfiguration, "%s: unknown value %q", chk.field, chk.value)
		}
	}
	return nil
}

// SyncTimeout parses sync.timeout. Zero means no limit.
func (c *Config) SyncTimeout() (time.Duration, error) {
	if c.Sync.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Sync.Timeout)
	if err != nil || d < 0 {
		return 0, gcalvault.WrapErrorf(gcalvault.ErrConfiguration, "sync.timeout: invalid duration %q", c.Sync.Timeout)
	}
	return d, nil
}

// SelectedCalendars converts the configured selection to domain calendars.
func (c *Config) SelectedCalendars() []gcalvault.Calendar {
	out := make([]gcalvault.Calendar, 0, len(c.Calendars))
	for _, cc := range c.Calendars {
		out = append(out, gcalvault.Calendar{ID: cc.ID, Name: cc.Name, AccessRole: gcalvault.AccessRole(cc.AccessRole)})
	}
	return out
}

// ResolveClientCredentials picks the OAuth client in priority order: explicit
// flag values, override files in the conf dir, config.toml, then the built-in default.
func ResolveClientCredentials(cfg *Config, flagID, flagSecret string) (string, string, error) {
	id := firstNonEmpty(flagID, readOverride(cfg.ConfDir, ClientIDFile), cfg.ClientID, DefaultClientID)
	secret := firstNonEmpty(flagSecret, readOverride(cfg.ConfDir, ClientSecretFile), cfg.ClientSecret, DefaultClientSecret)
	if id == "" || secret == "" {
		return "", "", gcalvault.WrapErrorf(gcalvault.ErrConfiguration, "no OAuth client configured; run 'gcalvault setup' or pass --client-id and --client-secret")
	}
	return id, secret, nil
}

func readOverride(confDir, name string) string {
	if confDir == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(confDir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from path and fills unset fields. rootDir and
// logDir seed the derived paths when the file leaves them empty.
func ReadFromFile(path, rootDir, logDir string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if cfg.RootDir == "" {
		cfg.RootDir = rootDir
	}
	if cfg.LogDir == "" {
		cfg.LogDir = logDir
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Save writes cfg to path, replacing any existing file.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return gcalvault.WrapError(gcalvault.ErrConfiguration, fmt.Errorf("creating config directory: %w", err))
	}

	tmp, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return gcalvault.WrapError(gcalvault.ErrConfiguration, fmt.Errorf("config directory %s is not writable: %w", dir, err))
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	m := &Manager{}
	if err := m.Write(tmp, cfg); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing config file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return fmt.Errorf("setting config permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}

// Init writes a new config file at path. It fails if one already exists.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := Save(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
