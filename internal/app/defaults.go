package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

// DockerRootDir is the root directory used when running in a container.
const DockerRootDir = "/app"

// LoadEnvFile loads variables from a .env file in the working directory.
// Variables already set in the environment win. A missing file is not an error.
func LoadEnvFile() error {
	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - GCALVAULT_HOME: root directory for gcalvault data (default: ~/.gcalvault, or /app when IS_DOCKER is set)
//   - GCALVAULT_CONFIG_PATH: config file location (default: <root>/conf/config.toml)
//   - IS_DOCKER: any non-empty value selects the container layout
func GetDefaults() (map[string]string, error) {
	rootDir, err := getRootDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": getConfigPath(rootDir),
		"root_dir":    rootDir,
		"log_dir":     getLogDir(rootDir),
	}, nil
}

func inDocker() bool {
	return os.Getenv("IS_DOCKER") != ""
}

// getRootDir returns the root directory, checking GCALVAULT_HOME first, then
// the container layout, then falling back to ~/.gcalvault.
func getRootDir() (string, error) {
	if path := os.Getenv("GCALVAULT_HOME"); path != "" {
		return path, nil
	}
	if inDocker() {
		return DockerRootDir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".gcalvault"), nil
}

// getConfigPath returns the config file path, checking GCALVAULT_CONFIG_PATH first.
func getConfigPath(rootDir string) string {
	if path := os.Getenv("GCALVAULT_CONFIG_PATH"); path != "" {
		return path
	}
	return filepath.Join(rootDir, "conf", "config.toml")
}

// getLogDir keeps logs next to the data when the root is explicit and uses
// the XDG state directory otherwise.
func getLogDir(rootDir string) string {
	if os.Getenv("GCALVAULT_HOME") != "" || inDocker() {
		return filepath.Join(rootDir, "log")
	}
	return filepath.Join(xdg.StateHome, "gcalvault", "log")
}
