package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gcalvault/internal/app"
	"gcalvault/internal/config"
	"gcalvault/internal/gcalvault"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// wizard reads answers line by line. Secrets are read without echo when the
// input is a terminal.
type wizard struct {
	in  *bufio.Reader
	raw io.Reader
	out io.Writer
}

func newWizard(in io.Reader, out io.Writer) *wizard {
	return &wizard{in: bufio.NewReader(in), raw: in, out: out}
}

func (w *wizard) ask(question, current string) (string, error) {
	if current != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", question, current)
	} else {
		fmt.Fprintf(w.out, "%s: ", question)
	}
	line, err := w.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading answer: %w", err)
	}
	if answer := strings.TrimSpace(line); answer != "" {
		return answer, nil
	}
	return current, nil
}

func (w *wizard) confirm(question string, current bool) (bool, error) {
	def := "n"
	if current {
		def = "y"
	}
	answer, err := w.ask(question+" (y/n)", def)
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(strings.ToLower(answer), "y"), nil
}

func (w *wizard) secret(question string) (string, error) {
	f, ok := w.raw.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return w.ask(question, "")
	}
	fmt.Fprintf(w.out, "%s: ", question)
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(w.out)
	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// parseSelection turns "1, 3" into zero-based indexes below n. An empty
// answer selects nothing.
func parseSelection(answer string, n int) ([]int, error) {
	var out []int
	seen := make(map[int]bool)
	for _, field := range strings.FieldsFunc(answer, func(r rune) bool { return r == ',' || r == ' ' }) {
		i, err := strconv.Atoi(field)
		if err != nil || i < 1 || i > n {
			return nil, fmt.Errorf("invalid calendar number %q (want 1-%d)", field, n)
		}
		if !seen[i-1] {
			seen[i-1] = true
			out = append(out, i-1)
		}
	}
	return out, nil
}

func splitList(answer string) []string {
	out := []string{}
	for _, field := range strings.Split(answer, ",") {
		if field = strings.TrimSpace(field); field != "" {
			out = append(out, field)
		}
	}
	return out
}

// writeClientOverrides persists the OAuth client in the conf dir so later
// runs pick it up without flags.
func writeClientOverrides(confDir, id, secret string) error {
	if err := os.MkdirAll(confDir, 0700); err != nil {
		return gcalvault.WrapError(gcalvault.ErrConfiguration, fmt.Errorf("creating conf directory: %w", err))
	}
	for name, value := range map[string]string{config.ClientIDFile: id, config.ClientSecretFile: secret} {
		if err := os.WriteFile(filepath.Join(confDir, name), []byte(value+"\n"), 0600); err != nil {
			return gcalvault.WrapError(gcalvault.ErrConfiguration, fmt.Errorf("conf directory %s is not writable: %w", confDir, err))
		}
	}
	return nil
}

func runSetup(cmd *cobra.Command) error {
	defaults, err := location(cmd)
	if err != nil {
		return err
	}
	path := defaults["config_path"]

	cfg := config.NewConfig(defaults["root_dir"], defaults["log_dir"])
	if _, err := os.Stat(path); err == nil {
		if cfg, err = config.ReadFromFile(path, defaults["root_dir"], defaults["log_dir"]); err != nil {
			return gcalvault.WrapError(gcalvault.ErrConfiguration, fmt.Errorf("reading config: %w", err))
		}
	}
	applyOverrides(cmd, cfg)

	out := cmd.OutOrStdout()
	w := newWizard(cmd.InOrStdin(), out)

	fmt.Fprintln(out, "gcalvault setup")
	fmt.Fprintln(out, "Create an OAuth client of type 'Desktop app' in the Google Cloud console.")
	clientID, _ := cmd.Flags().GetString("client-id")
	if clientID, err = w.ask("OAuth client ID", clientID); err != nil {
		return err
	}
	clientSecret, _ := cmd.Flags().GetString("client-secret")
	if clientSecret == "" {
		if clientSecret, err = w.secret("OAuth client secret"); err != nil {
			return err
		}
	}
	if clientID != "" && clientSecret != "" {
		if err := writeClientOverrides(cfg.ConfDir, clientID, clientSecret); err != nil {
			return err
		}
	}

	if cfg.Email, err = w.ask("Google account email", cfg.Email); err != nil {
		return err
	}

	a, err := app.NewGCalVaultApp(cmd.Context(), cfg, app.Options{
		Operation:    "setup",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		In:           w.in,
		Out:          out,
	})
	if err != nil {
		return fmt.Errorf("initializing app: %w", err)
	}
	calendars, err := a.ListCalendars(cmd.Context())
	a.Close()
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "\nCalendars:")
	for i, c := range calendars {
		fmt.Fprintf(out, "  %2d) %s  %s  (%s)\n", i+1, c.Name, c.ID, c.AccessRole)
	}
	answer, err := w.ask("Calendars to back up, comma separated numbers (empty for all)", "")
	if err != nil {
		return err
	}
	picked, err := parseSelection(answer, len(calendars))
	if err != nil {
		return gcalvault.WrapError(gcalvault.ErrConfiguration, err)
	}
	cfg.Calendars = []config.CalendarConfig{}
	for _, i := range picked {
		c := calendars[i]
		cfg.Calendars = append(cfg.Calendars, config.CalendarConfig{ID: c.ID, Name: c.Name, AccessRole: string(c.AccessRole)})
	}

	advanced, err := w.confirm("Configure advanced settings?", false)
	if err != nil {
		return err
	}
	if advanced {
		if err := askAdvanced(w, cfg); err != nil {
			return err
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nConfiguration saved to %s\n", path)
	return nil
}

func askAdvanced(w *wizard, cfg *config.Config) error {
	var err error
	if cfg.OutputDir, err = w.ask("Output directory", cfg.OutputDir); err != nil {
		return err
	}
	if cfg.Sync.Push, err = w.confirm("Push the vault to its remotes after each commit?", cfg.Sync.Push); err != nil {
		return err
	}
	roles, err := w.ask("Access roles to ignore, comma separated", strings.Join(cfg.Sync.IgnoreRoles, ","))
	if err != nil {
		return err
	}
	cfg.Sync.IgnoreRoles = splitList(roles)
	if cfg.Sync.AlwaysUpdate, err = w.confirm("Always refresh the calendar list?", cfg.Sync.AlwaysUpdate); err != nil {
		return err
	}
	if cfg.Command, err = w.ask("Default command ("+strings.Join(config.Commands, ", ")+")", cfg.Command); err != nil {
		return err
	}
	return nil
}
