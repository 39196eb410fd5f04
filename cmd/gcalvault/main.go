package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gcalvault/internal/app"
	"gcalvault/internal/config"
	"gcalvault/internal/encryption"
	"gcalvault/internal/gcalvault"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run 'gcalvault --help' for usage.")
		os.Exit(1)
	}
}

// location returns the defaults with config_path moved into --conf-dir when given.
func location(cmd *cobra.Command) (map[string]string, error) {
	if err := app.LoadEnvFile(); err != nil {
		return nil, err
	}
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	if cmd.Flags().Changed("conf-dir") {
		dir, _ := cmd.Flags().GetString("conf-dir")
		defaults["config_path"] = filepath.Join(dir, config.FileName)
	}
	return defaults, nil
}

// loadConfig reads config.toml and applies the command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	defaults, err := location(cmd)
	if err != nil {
		return nil, "", err
	}

	path := defaults["config_path"]
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, path, gcalvault.WrapErrorf(gcalvault.ErrConfiguration, "no config at %s; run 'gcalvault setup' first", path)
	}
	cfg, err := config.ReadFromFile(path, defaults["root_dir"], defaults["log_dir"])
	if err != nil {
		return nil, path, gcalvault.WrapError(gcalvault.ErrConfiguration, fmt.Errorf("reading config: %w", err))
	}
	applyOverrides(cmd, cfg)
	return cfg, path, nil
}

// applyOverrides copies the flags that were set on the command line into cfg.
func applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("conf-dir") {
		dir, _ := flags.GetString("conf-dir")
		cfg.SetConfDir(dir)
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir, _ = flags.GetString("output-dir")
	}
	if flags.Changed("ssh-key") {
		cfg.Vault.SSHKeyPath, _ = flags.GetString("ssh-key")
	}
	if flags.Changed("ignore-role") {
		cfg.Sync.IgnoreRoles, _ = flags.GetStringSlice("ignore-role")
	}
	if flags.Changed("push") {
		cfg.Sync.Push, _ = flags.GetBool("push")
	}
}

// newApp reads the config and creates a GCalVaultApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "sync", "test").
func newApp(cmd *cobra.Command, operation string) (*app.GCalVaultApp, *config.Config, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	clientID, _ := cmd.Flags().GetString("client-id")
	clientSecret, _ := cmd.Flags().GetString("client-secret")
	exportOnly, _ := cmd.Flags().GetBool("export-only")

	a, err := app.NewGCalVaultApp(cmd.Context(), cfg, app.Options{
		Operation:    operation,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		ExportOnly:   exportOnly,
		Verbose:      verbose,
		In:           cmd.InOrStdin(),
		Out:          cmd.OutOrStdout(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, cfg, nil
}

func runSync(cmd *cobra.Command, clean bool) error {
	operation := "sync"
	if clean {
		operation = "clean-sync"
	}
	calendars, _ := cmd.Flags().GetStringSlice("calendar")

	a, _, err := newApp(cmd, operation)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Sync(cmd.Context(), app.SyncRequest{Clean: clean, CalendarIDs: calendars})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Fetched %d, skipped %d, removed %d calendar(s)\n", report.Fetched, report.Skipped, report.Removed)
	switch {
	case report.Committed:
		fmt.Fprintf(out, "Committed %d change(s) to %s\n", report.Changes, a.OutputDir())
	default:
		fmt.Fprintf(out, "No changes in %s\n", a.OutputDir())
	}
	if report.Pushed {
		fmt.Fprintln(out, "Pushed vault to remotes")
	}
	if report.Mirrored > 0 {
		fmt.Fprintf(out, "Mirrored %d file(s)\n", report.Mirrored)
	}
	return nil
}

func runTest(cmd *cobra.Command) error {
	a, cfg, err := newApp(cmd, "test")
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Test(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Authenticated as %s\n", gcalvault.NormalizeIdentity(cfg.Email))
	return nil
}

var rootCmd = &cobra.Command{
	Use:           "gcalvault",
	Short:         "Incremental backup of Google Calendars into a git vault",
	SilenceErrors: true,
	SilenceUsage:  true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		switch cfg.Command {
		case "clean-sync":
			return runSync(cmd, true)
		case "test":
			return runTest(cmd)
		default:
			return runSync(cmd, false)
		}
	},
}

// sync commands
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Back up calendars that changed since the last run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, false)
	},
}

var cleanSyncCmd = &cobra.Command{
	Use:   "clean-sync",
	Short: "Sync and remove files of calendars that are no longer selected",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, true)
	},
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Check authentication and that the vault and mirror are usable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTest(cmd)
	},
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactively create the configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup(cmd)
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := location(cmd)
		if err != nil {
			return err
		}

		cfg := config.NewConfig(defaults["root_dir"], defaults["log_dir"])
		applyOverrides(cmd, cfg)
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return gcalvault.WrapError(gcalvault.ErrConfiguration, err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Root Dir: %s\n", cfg.RootDir)
		fmt.Println("Set 'email' in the file, or run 'gcalvault setup'.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return printConfig(cmd.OutOrStdout(), cfg, path)
	},
}

// printConfig writes the effective configuration in a human readable form.
func printConfig(w io.Writer, cfg *config.Config, path string) error {
	fmt.Fprintf(w, "Configuration from %s:\n\n", path)
	fmt.Fprintf(w, "Email:      %s\n", cfg.Email)
	fmt.Fprintf(w, "Command:    %s\n", cfg.Command)
	fmt.Fprintf(w, "Output Dir: %s\n", cfg.OutputDir)
	fmt.Fprintf(w, "Conf Dir:   %s\n", cfg.ConfDir)
	fmt.Fprintf(w, "Log Dir:    %s\n", cfg.LogDir)
	fmt.Fprintf(w, "Vault:      %s (push=%t)\n", cfg.Vault.Type, cfg.Sync.Push)
	fmt.Fprintf(w, "Mirror:     %s\n", cfg.Mirror.Type)

	sealer, err := encryption.NewSealerFromConfig(cfg.Credentials)
	if err != nil {
		return gcalvault.WrapError(gcalvault.ErrConfiguration, err)
	}
	switch {
	case sealer == nil:
		fmt.Fprintf(w, "Tokens:     %s (plain)\n", cfg.Credentials.Dir)
	case sealer.IsConfigured():
		fmt.Fprintf(w, "Tokens:     %s (%s, key %s)\n", cfg.Credentials.Dir, cfg.Credentials.Encryption, cfg.Credentials.KeyPath)
	default:
		fmt.Fprintf(w, "Tokens:     %s (%s, key not created yet)\n", cfg.Credentials.Dir, cfg.Credentials.Encryption)
	}

	if len(cfg.Sync.IgnoreRoles) > 0 {
		fmt.Fprintf(w, "Ignored:    %s\n", strings.Join(cfg.Sync.IgnoreRoles, ", "))
	}
	if len(cfg.Calendars) == 0 {
		fmt.Fprintln(w, "Calendars:  all")
		return nil
	}
	fmt.Fprintln(w, "Calendars:")
	for _, c := range cfg.Calendars {
		fmt.Fprintf(w, "  %s  %s  (%s)\n", c.ID, c.Name, c.AccessRole)
	}
	return nil
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, _, err := newApp(cmd, "history")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No sync operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				d := op.FinishedAt.Time.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-10s  %s  %-8s  fetched:%d skipped:%d removed:%d changes:%d  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				op.Fetched,
				op.Skipped,
				op.Removed,
				op.Changes,
				duration,
			)
		}
		return nil
	},
}

func addSyncFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("calendar", "k", nil, "Calendar ID to back up instead of the configured selection (repeatable)")
	cmd.Flags().BoolP("export-only", "e", false, "Write calendar files without committing them to the vault")
}

// addOverrideFlags registers the flags that take precedence over config.toml.
func addOverrideFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("client-id", "", "OAuth client ID")
	flags.String("client-secret", "", "OAuth client secret")
	flags.StringP("output-dir", "o", "", "Directory holding the calendar files and the vault")
	flags.StringP("conf-dir", "c", "", "Directory holding config.toml, tokens and state")
	flags.String("ssh-key", "", "Private key used to push the vault over ssh")
	flags.StringSliceP("ignore-role", "i", nil, "Access role whose calendars are skipped (repeatable)")
	flags.BoolP("push", "p", false, "Push the vault to its remotes after each commit")
	flags.BoolP("verbose", "v", false, "Show debug messages on the console")
}

func init() {
	addOverrideFlags(rootCmd)

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// root commands
	addSyncFlags(rootCmd)
	addSyncFlags(syncCmd)
	addSyncFlags(cleanSyncCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(cleanSyncCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of operations to show")
}
