// Package core wires the sftpdesk engine: one Engine value owns the event
// bus, the session registry, the transfer and file services, the profile
// store and the configuration. Every entry point (bridge, CLI) receives an
// Engine instead of reaching for package-level state.
package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sftpdesk/sftpdesk/internal/config"
	"github.com/sftpdesk/sftpdesk/internal/events"
	"github.com/sftpdesk/sftpdesk/internal/localfs"
	"github.com/sftpdesk/sftpdesk/internal/logging"
	"github.com/sftpdesk/sftpdesk/internal/metrics"
	"github.com/sftpdesk/sftpdesk/internal/models"
	"github.com/sftpdesk/sftpdesk/internal/profiles"
	"github.com/sftpdesk/sftpdesk/internal/remote"
	"github.com/sftpdesk/sftpdesk/internal/services"
	"github.com/sftpdesk/sftpdesk/internal/session"
	"github.com/sftpdesk/sftpdesk/internal/transfer"
)

// Options overrides the pieces NewEngine would otherwise build from the
// configuration. Zero values mean "build the default".
type Options struct {
	// Mode is "cli" or "serve". Serve mode honours [logging] file.
	Mode string
	// Dialer replaces the SSH dialer, e.g. with an in-memory server in tests.
	Dialer remote.Dialer
	// Local replaces the OS filesystem used for local files.
	Local *localfs.Store
	// ProfilesPath replaces the default profiles.toml location.
	ProfilesPath string
	// LogOutput replaces stderr for console logs.
	LogOutput io.Writer
}

// Engine is the application context.
type Engine struct {
	config   *config.AppConfig
	eventBus *events.EventBus
	logger   *logging.Logger
	logFile  *os.File

	sessions        *session.Registry
	transferService *services.TransferService
	fileService     *services.FileService
	profiles        *profiles.Store

	closeOnce sync.Once
}

// NewEngine creates a new engine instance. A nil cfg means defaults.
func NewEngine(cfg *config.AppConfig, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.NewAppConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if opts.Mode == "" {
		opts.Mode = "cli"
	}

	eventBus := events.NewEventBus(0)
	eventBus.OnDrop(func(t events.EventType) { metrics.RecordEventDropped(string(t)) })

	e := &Engine{config: cfg, eventBus: eventBus}
	if err := e.initLogger(opts); err != nil {
		eventBus.Close()
		return nil, err
	}

	dialer := opts.Dialer
	if dialer == nil {
		d, err := remote.NewSSHDialer(remote.SSHOptions{
			DialTimeout:     cfg.DialTimeout(),
			KnownHostsFile:  cfg.SSH.KnownHosts,
			MaxPacket:       cfg.SSH.MaxPacket,
			ConcurrentReads: cfg.SSH.ConcurrentReads,
			KeepAlive:       cfg.KeepAlive(),
		}, e.logger)
		if err != nil {
			e.shutdownLogging()
			return nil, err
		}
		dialer = d
	}

	profilesPath := opts.ProfilesPath
	if profilesPath == "" {
		p, err := config.DefaultProfilesPath()
		if err != nil {
			e.shutdownLogging()
			return nil, fmt.Errorf("failed to locate profiles: %w", err)
		}
		profilesPath = p
	}
	store, err := profiles.Open(profilesPath)
	if err != nil {
		e.shutdownLogging()
		return nil, fmt.Errorf("failed to open profiles: %w", err)
	}

	e.sessions = session.NewRegistry(dialer, eventBus, e.logger)
	e.transferService = services.NewTransferService(e.sessions, opts.Local, eventBus, e.logger, services.TransferServiceConfig{
		MaxConcurrent:    cfg.Transfer.MaxConcurrent,
		ChunkSize:        cfg.Transfer.ChunkSize,
		ProgressInterval: cfg.ProgressInterval(),
		ProgressStep:     cfg.Transfer.ProgressStepBytes,
		CheckDiskSpace:   cfg.Transfer.CheckDiskSpace,
	})
	e.fileService = services.NewFileService(e.sessions, e.logger)
	e.profiles = store

	e.logger.Debug().Str("mode", opts.Mode).Str("profiles", profilesPath).Msg("engine ready")
	return e, nil
}

func (e *Engine) initLogger(opts Options) error {
	logging.SetGlobalLevel(logging.ParseLevel(e.config.Logging.Level))

	if opts.Mode == "serve" && e.config.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(e.config.Logging.File), 0700); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(e.config.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		e.logFile = f
		e.logger = logging.NewJSONLogger(f, e.eventBus)
		return nil
	}

	e.logger = logging.NewLogger(opts.Mode, e.eventBus)
	if opts.LogOutput != nil {
		e.logger.SetOutput(opts.LogOutput)
	}
	return nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() *config.AppConfig { return e.config }

// Events returns the event bus.
func (e *Engine) Events() *events.EventBus { return e.eventBus }

// Logger returns the root logger.
func (e *Engine) Logger() *logging.Logger { return e.logger }

// Sessions returns the session registry.
func (e *Engine) Sessions() *session.Registry { return e.sessions }

// TransferService returns the transfer service.
func (e *Engine) TransferService() *services.TransferService { return e.transferService }

// FileService returns the file service.
func (e *Engine) FileService() *services.FileService { return e.fileService }

// Profiles returns the saved connection store.
func (e *Engine) Profiles() *profiles.Store { return e.profiles }

// TestConnection authenticates without registering a session.
func (e *Engine) TestConnection(ctx context.Context, params models.ConnectParams) (string, error) {
	return e.sessions.TestConnection(ctx, params)
}

// Connect registers a session under info.ID.
func (e *Engine) Connect(ctx context.Context, info models.SessionInfo) (string, error) {
	return e.sessions.Connect(ctx, info)
}

// ConnectProfile connects using a saved profile and records its use.
// password overrides the saved password when non-empty.
func (e *Engine) ConnectProfile(ctx context.Context, sessionID, idOrName, password string) (string, error) {
	p, err := e.profiles.Get(idOrName)
	if err != nil {
		return "", err
	}
	params := p.Params(password)
	id, err := e.sessions.Connect(ctx, models.SessionInfo{
		ID:       sessionID,
		Name:     p.Name,
		Host:     params.Host,
		Port:     params.Port,
		Username: params.Username,
		Password: params.Password,
	})
	if err != nil {
		return "", err
	}
	if err := e.profiles.Touch(p.ID); err != nil {
		e.logger.Warn().Err(err).Str("profile", p.ID).Msg("could not record profile use")
	}
	return id, nil
}

// Disconnect closes a session. Unknown ids succeed.
func (e *Engine) Disconnect(sessionID string) string {
	e.sessions.Disconnect(sessionID)
	return "Disconnected"
}

// GetConnectionInfo describes a registered session.
func (e *Engine) GetConnectionInfo(ctx context.Context, sessionID string) (string, error) {
	return e.sessions.ConnectionInfo(ctx, sessionID)
}

// ListDirectory lists a remote directory.
func (e *Engine) ListDirectory(ctx context.Context, sessionID, dir string) ([]models.FileEntry, error) {
	return e.fileService.ListDirectory(ctx, sessionID, dir)
}

// DownloadWithProgress copies a remote file to a local path with progress
// events and cancellation.
func (e *Engine) DownloadWithProgress(ctx context.Context, req services.DownloadRequest) (services.Result, error) {
	return e.transferService.Download(ctx, req)
}

// Download is the plain bulk download without events or cancellation.
func (e *Engine) Download(ctx context.Context, sessionID, remotePath, localPath string) (services.Result, error) {
	return e.transferService.DownloadLegacy(ctx, sessionID, remotePath, localPath)
}

// Upload copies a local file to a remote path.
func (e *Engine) Upload(ctx context.Context, req services.UploadRequest) (services.Result, error) {
	return e.transferService.Upload(ctx, req)
}

// UploadBytes writes an in-memory buffer to a remote path.
func (e *Engine) UploadBytes(ctx context.Context, sessionID, remotePath string, data []byte, displayName string) (services.Result, error) {
	return e.transferService.UploadBytes(ctx, sessionID, remotePath, data, displayName)
}

// CreateDirectory creates a remote directory with mode 0755.
func (e *Engine) CreateDirectory(ctx context.Context, sessionID, dir string) (string, error) {
	return e.fileService.CreateDirectory(ctx, sessionID, dir)
}

// Delete removes a remote file or empty directory.
func (e *Engine) Delete(ctx context.Context, sessionID, target string, isDir bool) (string, error) {
	return e.fileService.Delete(ctx, sessionID, target, isDir)
}

// RequestCancel signals the transfer with the given id.
func (e *Engine) RequestCancel(transferID string) (string, error) {
	if err := e.transferService.RequestCancel(transferID); err != nil {
		return "", err
	}
	return "Transfer cancelled", nil
}

// CancelAll signals every active transfer and returns how many there were.
func (e *Engine) CancelAll() int {
	return e.transferService.CancelAll()
}

// ListTransfers snapshots the transfer queue.
func (e *Engine) ListTransfers() services.TransferList {
	return e.transferService.ListTransfers()
}

// ClearFinished drops finished transfers from the listing.
func (e *Engine) ClearFinished() int {
	return e.transferService.ClearFinished()
}

// TransferStats returns queue counters.
func (e *Engine) TransferStats() transfer.QueueStats {
	return e.transferService.GetStats()
}

// DownloadsDirectory returns where downloads land by default.
func (e *Engine) DownloadsDirectory() string {
	return e.config.DownloadsDirectory()
}

// Close cancels every transfer, closes every session and the event bus.
// Safe to call more than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		if n := e.transferService.CancelAll(); n > 0 {
			e.logger.Info().Int("transfers", n).Msg("cancelled transfers at shutdown")
		}
		e.sessions.CloseAll()
		e.shutdownLogging()
	})
}

func (e *Engine) shutdownLogging() {
	e.eventBus.Close()
	if e.logFile != nil {
		e.logFile.Close()
		e.logFile = nil
	}
}
