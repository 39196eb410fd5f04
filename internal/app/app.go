package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gcalvault/internal/changes"
	"gcalvault/internal/config"
	"gcalvault/internal/credentials"
	"gcalvault/internal/database"
	"gcalvault/internal/encryption"
	"gcalvault/internal/fs"
	"gcalvault/internal/gcalvault"
	"gcalvault/internal/google"
	"gcalvault/internal/mirror"
	"gcalvault/internal/vault"
)

// Options adjusts how the app is wired. The zero value is the production setup.
type Options struct {
	// Operation names the CLI command being run (e.g. "sync", "clean-sync", "test").
	Operation string

	// ClientID and ClientSecret are the --client-id/--client-secret flag values.
	ClientID     string
	ClientSecret string

	// ExportOnly writes calendar files without a vault.
	ExportOnly bool

	// In and Out are used by interactive authorization. Defaults are stdin and stdout.
	In  io.Reader
	Out io.Writer

	// Console receives log output next to the log file. Default is stderr.
	Console io.Writer

	// Verbose shows debug records on the console. The log file always has them.
	Verbose bool

	// Overrides for tests.
	Connector  gcalvault.Connector
	Authorizer credentials.Authorizer
	Verifier   credentials.IdentityVerifier
	Clock      gcalvault.Clock
	IDs        gcalvault.IDGenerator
}

// GCalVaultApp is the application layer between the CLI and SyncService.
// It constructs all dependencies from config, exposes high-level operations,
// and records sync runs in the history on Close.
type GCalVaultApp struct {
	cfg         *config.Config
	opts        Options
	db          *database.SQLiteDatabase
	vault       gcalvault.Vault
	mirror      gcalvault.Mirror
	output      *fs.OSOutputStore
	credentials *credentials.Manager
	service     *gcalvault.SyncService
	op          *Operation
	logger      gcalvault.Logger
	logFile     *os.File
	runID       string
}

// NewGCalVaultApp creates a fully wired GCalVaultApp from the given config.
// The caller must call Close when done.
func NewGCalVaultApp(ctx context.Context, cfg *config.Config, opts Options) (*GCalVaultApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Clock == nil {
		opts.Clock = gcalvault.RealClock{}
	}
	if opts.IDs == nil {
		opts.IDs = gcalvault.UUIDGenerator{}
	}
	if opts.Operation == "" {
		opts.Operation = cfg.Command
	}

	runID := opts.IDs.New()
	consoleLevel := slog.LevelInfo
	if opts.Verbose {
		consoleLevel = slog.LevelDebug
	}
	slogger, logFile, err := newLogger(cfg.LogDir, runID, opts.Console, consoleLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	a := &GCalVaultApp{
		cfg:     cfg,
		opts:    opts,
		op:      NewOperation(opts.Operation, ""),
		logger:  logger,
		logFile: logFile,
		runID:   runID,
	}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *GCalVaultApp) wire(ctx context.Context) error {
	cfg := a.cfg

	db, err := database.NewDatabaseFromConfig(cfg.Database, a.opts.Clock)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	a.db = db
	if err := db.CheckMigrations(); err != nil {
		return fmt.Errorf("database schema out of date: %w", err)
	}

	store, err := changes.NewStoreFromConfig(cfg.Changes, db)
	if err != nil {
		return gcalvault.WrapError(gcalvault.ErrConfiguration, fmt.Errorf("creating change store: %w", err))
	}
	detector := changes.NewDetector(store)

	sealer, err := encryption.NewSealerFromConfig(cfg.Credentials)
	if err != nil {
		return gcalvault.WrapError(gcalvault.ErrConfiguration, fmt.Errorf("creating token sealer: %w", err))
	}

	clientID, clientSecret, err := config.ResolveClientCredentials(cfg, a.opts.ClientID, a.opts.ClientSecret)
	if err != nil {
		return err
	}

	a.credentials = credentials.NewManager(credentials.Options{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       google.Scopes,
		StoreDir:     cfg.Credentials.Dir,
	}, sealer, a.authorizer(), a.verifier(), a.logger)

	output, err := fs.NewOutputStore(cfg.OutputDir)
	if err != nil {
		return gcalvault.WrapError(gcalvault.ErrTransientIO, fmt.Errorf("creating output store: %w", err))
	}
	a.output = output

	if a.writesVault() {
		if !a.exportOnly() {
			v, err := vault.NewVaultFromConfig(cfg.Vault, output.Dir(), a.opts.Clock, a.logger)
			if err != nil {
				return fmt.Errorf("creating vault: %w", err)
			}
			a.vault = v
		}

		m, err := mirror.NewMirrorFromConfig(ctx, cfg.Mirror)
		if err != nil {
			return gcalvault.WrapError(gcalvault.ErrConfiguration, fmt.Errorf("creating mirror: %w", err))
		}
		a.mirror = m
	}

	connector := a.opts.Connector
	if connector == nil {
		connector = &google.Connector{}
	}

	a.service = gcalvault.NewSyncService(a.credentials, connector, detector, a.vault, a.mirror, output, a.logger, a.opts.Clock)
	return nil
}

func (a *GCalVaultApp) authorizer() credentials.Authorizer {
	if a.opts.Authorizer != nil {
		return a.opts.Authorizer
	}
	if a.cfg.Credentials.Authorizer == "prompt" {
		return &credentials.PromptAuthorizer{In: a.opts.In, Out: a.opts.Out}
	}
	return &credentials.LoopbackAuthorizer{Out: a.opts.Out}
}

func (a *GCalVaultApp) verifier() credentials.IdentityVerifier {
	if a.opts.Verifier != nil {
		return a.opts.Verifier
	}
	return &google.UserinfoVerifier{}
}

// writesVault reports whether the operation needs the vault and mirror.
// "test" opens them to check their setup.
func (a *GCalVaultApp) writesVault() bool {
	switch a.opts.Operation {
	case "sync", "clean-sync", "test":
		return true
	}
	return false
}

func (a *GCalVaultApp) exportOnly() bool {
	return a.opts.ExportOnly || a.cfg.Sync.ExportOnly || a.cfg.Vault.Type == "none"
}

// RunID returns the identifier written into every log line of this run.
func (a *GCalVaultApp) RunID() string {
	return a.runID
}

// Logger returns the run's logger.
func (a *GCalVaultApp) Logger() gcalvault.Logger {
	return a.logger
}

// persistOperation saves the operation to the history, giving it an auto-increment ID.
func (a *GCalVaultApp) persistOperation() error {
	if a.op.Persisted() {
		return nil
	}
	dbOp, err := a.db.CreateSyncOperation(a.op.Name, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting sync operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// SyncRequest holds the per-invocation parameters of a sync.
type SyncRequest struct {
	// Clean removes files of calendars that are no longer resolved.
	Clean bool

	// CalendarIDs overrides the configured selection (--calendar).
	CalendarIDs []string
}

// Sync runs one sync pass bounded by sync.timeout and records it in the history.
func (a *GCalVaultApp) Sync(ctx context.Context, req SyncRequest) (*gcalvault.SyncReport, error) {
	a.op.Parameters = strings.Join(req.CalendarIDs, ",")
	if err := a.persistOperation(); err != nil {
		return nil, err
	}

	report, err := a.sync(ctx, req)
	a.op.Finish(report, err)
	if err != nil {
		a.logger.Error("sync failed", "error", err)
		return report, err
	}

	a.logger.Info("sync finished",
		"fetched", report.Fetched,
		"skipped", report.Skipped,
		"removed", report.Removed,
		"changes", report.Changes,
		"pushed", report.Pushed)
	return report, nil
}

func (a *GCalVaultApp) sync(ctx context.Context, req SyncRequest) (*gcalvault.SyncReport, error) {
	timeout, err := a.cfg.SyncTimeout()
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	selected := a.cfg.SelectedCalendars()
	if len(req.CalendarIDs) > 0 {
		selected, err = a.resolveSelection(ctx, req.CalendarIDs)
		if err != nil {
			return nil, err
		}
	}

	if a.vault == nil {
		a.logger.Info("export only, no vault", "dir", a.output.Dir())
	}

	return a.service.Sync(ctx, gcalvault.SyncOptions{
		Identity:      a.cfg.Email,
		Selected:      selected,
		ExcludedRoles: a.cfg.Sync.IgnoreRoles,
		Clean:         req.Clean,
		Push:          a.cfg.Sync.Push,
		AlwaysRefresh: a.cfg.Sync.AlwaysUpdate,
	})
}

func (a *GCalVaultApp) resolveSelection(ctx context.Context, ids []string) ([]gcalvault.Calendar, error) {
	available, err := a.ListCalendars(ctx)
	if err != nil {
		return nil, err
	}
	return gcalvault.ResolveSelection(available, ids)
}

// ListCalendars authenticates and returns every calendar of the configured account.
func (a *GCalVaultApp) ListCalendars(ctx context.Context) ([]*gcalvault.Calendar, error) {
	svc, _, err := a.service.Authenticate(ctx, a.cfg.Email)
	if err != nil {
		return nil, err
	}
	cals, err := svc.ListCalendars(ctx)
	if err != nil {
		return nil, gcalvault.WrapError(gcalvault.ErrTransientIO, fmt.Errorf("listing calendars: %w", err))
	}
	return cals, nil
}

// Test verifies that a usable credential can be obtained for the configured
// account and that the vault and mirror are usable.
func (a *GCalVaultApp) Test(ctx context.Context) error {
	_, newlyAuthorized, err := a.service.Authenticate(ctx, a.cfg.Email)
	if err != nil {
		return err
	}
	a.logger.Info("authentication ok", "identity", gcalvault.NormalizeIdentity(a.cfg.Email), "new_authorization", newlyAuthorized)

	if a.vault != nil {
		if err := a.vault.ValidateSetup(); err != nil {
			return gcalvault.WrapError(gcalvault.ErrVault, fmt.Errorf("vault not usable: %w", err))
		}
		a.logger.Info("vault ok", "dir", a.output.Dir())
	}
	if a.mirror != nil {
		if err := a.mirror.ValidateSetup(); err != nil {
			return gcalvault.WrapError(gcalvault.ErrConfiguration, fmt.Errorf("mirror not usable: %w", err))
		}
		a.logger.Info("mirror ok", "type", a.cfg.Mirror.Type)
	}
	return nil
}

// History returns the most recent recorded runs.
func (a *GCalVaultApp) History(limit int) ([]*database.SyncOperation, error) {
	return a.db.ListSyncOperations(limit)
}

// OutputDir returns the directory holding calendar files.
func (a *GCalVaultApp) OutputDir() string {
	return a.output.Dir()
}

// Close finalizes the operation record and closes all resources.
func (a *GCalVaultApp) Close() error {
	var errs []error

	if a.db != nil {
		if a.op.Persisted() {
			if err := a.db.FinishSyncOperation(a.op.ID, a.op.Status, a.op.Report); err != nil {
				errs = append(errs, fmt.Errorf("finishing sync operation: %w", err))
			}
		}
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return errors.Join(errs...)
}
