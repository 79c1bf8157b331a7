// Package config loads and saves the sftpdesk configuration file and
// resolves the per-user paths the engine uses.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/sftpdesk/sftpdesk/internal/constants"
)

// AppConfig is the sftpdesk configuration.
//
// Config file location:
//   - Windows: %APPDATA%\sftpdesk\sftpdesk.conf
//   - Unix: ~/.config/sftpdesk/sftpdesk.conf
//
// INI format:
//
//	[ssh]
//	dial_timeout_seconds = 15
//	known_hosts =
//	max_packet = 32768
//	concurrent_reads = true
//	keepalive_seconds = 0
//
//	[transfer]
//	chunk_size = 8192
//	progress_interval_ms = 100
//	progress_step_bytes = 1048576
//	max_concurrent = 4
//	check_disk_space = true
//	download_dir =
//
//	[bridge]
//	socket_path =
//
//	[metrics]
//	listen_addr =
//
//	[logging]
//	level = info
//	file =
type AppConfig struct {
	SSH      SSHConfig
	Transfer TransferConfig
	Bridge   BridgeConfig
	Metrics  MetricsConfig
	Logging  LoggingConfig
}

// SSHConfig controls how sessions are dialed.
type SSHConfig struct {
	// DialTimeoutSeconds bounds TCP connect plus SSH handshake.
	DialTimeoutSeconds int
	// KnownHosts is an OpenSSH known_hosts file. Empty accepts any host key.
	KnownHosts string
	// MaxPacket is the SFTP packet size requested from servers.
	MaxPacket int
	// ConcurrentReads pipelines reads for bulk copies.
	ConcurrentReads bool
	// KeepAliveSeconds sends SSH keepalives when > 0.
	KeepAliveSeconds int
}

// TransferConfig controls the copy loop and the transfer pool.
type TransferConfig struct {
	ChunkSize          int
	ProgressIntervalMS int
	ProgressStepBytes  int64
	MaxConcurrent      int
	CheckDiskSpace     bool
	// DownloadDir overrides the platform downloads directory.
	DownloadDir string
}

// BridgeConfig controls the local command socket.
type BridgeConfig struct {
	// SocketPath defaults to DefaultSocketPath().
	SocketPath string
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// ListenAddr enables /metrics when set, e.g. "127.0.0.1:9464".
	ListenAddr string
}

// LoggingConfig controls log output in serve mode.
type LoggingConfig struct {
	Level string
	// File receives JSON log lines when set; otherwise logs go to stderr.
	File string
}

// Validation errors
var (
	ErrInvalidDialTimeout   = errors.New("dial_timeout_seconds must be between 1 and 300")
	ErrInvalidMaxPacket     = errors.New("max_packet must be between 1024 and 262144")
	ErrInvalidChunkSize     = errors.New("chunk_size must be between 512 and 4194304")
	ErrInvalidInterval      = errors.New("progress_interval_ms must be between 10 and 10000")
	ErrInvalidProgressStep  = errors.New("progress_step_bytes must be at least 4096")
	ErrInvalidMaxConcurrent = errors.New("max_concurrent must be between 1 and 32")
	ErrInvalidKeepAlive     = errors.New("keepalive_seconds must not be negative")
	ErrInvalidLogLevel      = errors.New("level must be one of debug, info, warn, error")
)

// NewAppConfig creates a config with default values.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		SSH: SSHConfig{
			DialTimeoutSeconds: int(constants.DefaultDialTimeout / time.Second),
			MaxPacket:          constants.DefaultMaxPacket,
			ConcurrentReads:    true,
		},
		Transfer: TransferConfig{
			ChunkSize:          constants.ChunkSize,
			ProgressIntervalMS: int(constants.ProgressInterval / time.Millisecond),
			ProgressStepBytes:  constants.ProgressStepBytes,
			MaxConcurrent:      constants.DefaultMaxConcurrentTransfers,
			CheckDiskSpace:     true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the configuration file. If path is empty, uses the default
// path. A missing file yields defaults and no error; a malformed one is an
// error.
func Load(path string) (*AppConfig, error) {
	cfg := NewAppConfig()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil // Return defaults if we can't determine path
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	ssh := iniFile.Section("ssh")
	cfg.SSH.DialTimeoutSeconds = ssh.Key("dial_timeout_seconds").MustInt(cfg.SSH.DialTimeoutSeconds)
	cfg.SSH.KnownHosts = ssh.Key("known_hosts").String()
	cfg.SSH.MaxPacket = ssh.Key("max_packet").MustInt(cfg.SSH.MaxPacket)
	cfg.SSH.ConcurrentReads = ssh.Key("concurrent_reads").MustBool(cfg.SSH.ConcurrentReads)
	cfg.SSH.KeepAliveSeconds = ssh.Key("keepalive_seconds").MustInt(0)

	tr := iniFile.Section("transfer")
	cfg.Transfer.ChunkSize = tr.Key("chunk_size").MustInt(cfg.Transfer.ChunkSize)
	cfg.Transfer.ProgressIntervalMS = tr.Key("progress_interval_ms").MustInt(cfg.Transfer.ProgressIntervalMS)
	cfg.Transfer.ProgressStepBytes = tr.Key("progress_step_bytes").MustInt64(cfg.Transfer.ProgressStepBytes)
	cfg.Transfer.MaxConcurrent = tr.Key("max_concurrent").MustInt(cfg.Transfer.MaxConcurrent)
	cfg.Transfer.CheckDiskSpace = tr.Key("check_disk_space").MustBool(cfg.Transfer.CheckDiskSpace)
	cfg.Transfer.DownloadDir = tr.Key("download_dir").String()

	cfg.Bridge.SocketPath = iniFile.Section("bridge").Key("socket_path").String()
	cfg.Metrics.ListenAddr = iniFile.Section("metrics").Key("listen_addr").String()

	logs := iniFile.Section("logging")
	cfg.Logging.Level = logs.Key("level").MustString(cfg.Logging.Level)
	cfg.Logging.File = logs.Key("file").String()

	return cfg, nil
}

// Save writes the configuration. If path is empty, uses the default path.
// The file is written to a temporary name, restricted to the owner, and
// renamed into place.
func Save(cfg *AppConfig, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()
	sections := []struct {
		name string
		keys [][2]string
	}{
		{"ssh", [][2]string{
			{"dial_timeout_seconds", fmt.Sprintf("%d", cfg.SSH.DialTimeoutSeconds)},
			{"known_hosts", cfg.SSH.KnownHosts},
			{"max_packet", fmt.Sprintf("%d", cfg.SSH.MaxPacket)},
			{"concurrent_reads", fmt.Sprintf("%t", cfg.SSH.ConcurrentReads)},
			{"keepalive_seconds", fmt.Sprintf("%d", cfg.SSH.KeepAliveSeconds)},
		}},
		{"transfer", [][2]string{
			{"chunk_size", fmt.Sprintf("%d", cfg.Transfer.ChunkSize)},
			{"progress_interval_ms", fmt.Sprintf("%d", cfg.Transfer.ProgressIntervalMS)},
			{"progress_step_bytes", fmt.Sprintf("%d", cfg.Transfer.ProgressStepBytes)},
			{"max_concurrent", fmt.Sprintf("%d", cfg.Transfer.MaxConcurrent)},
			{"check_disk_space", fmt.Sprintf("%t", cfg.Transfer.CheckDiskSpace)},
			{"download_dir", cfg.Transfer.DownloadDir},
		}},
		{"bridge", [][2]string{{"socket_path", cfg.Bridge.SocketPath}}},
		{"metrics", [][2]string{{"listen_addr", cfg.Metrics.ListenAddr}}},
		{"logging", [][2]string{
			{"level", cfg.Logging.Level},
			{"file", cfg.Logging.File},
		}},
	}
	for _, s := range sections {
		sec, err := iniFile.NewSection(s.name)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", s.name, err)
		}
		for _, kv := range s.keys {
			sec.Key(kv[0]).SetValue(kv[1])
		}
	}

	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	// Set restrictive permissions on Unix
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// Validate checks value ranges. Returns nil if valid, or one of the
// package's sentinel errors.
func (cfg *AppConfig) Validate() error {
	if cfg.SSH.DialTimeoutSeconds < 1 || cfg.SSH.DialTimeoutSeconds > 300 {
		return ErrInvalidDialTimeout
	}
	if cfg.SSH.MaxPacket < 1024 || cfg.SSH.MaxPacket > 256*1024 {
		return ErrInvalidMaxPacket
	}
	if cfg.SSH.KeepAliveSeconds < 0 {
		return ErrInvalidKeepAlive
	}
	if cfg.Transfer.ChunkSize < 512 || cfg.Transfer.ChunkSize > constants.MaxChunkSize {
		return ErrInvalidChunkSize
	}
	if cfg.Transfer.ProgressIntervalMS < 10 || cfg.Transfer.ProgressIntervalMS > 10000 {
		return ErrInvalidInterval
	}
	if cfg.Transfer.ProgressStepBytes < 4096 {
		return ErrInvalidProgressStep
	}
	if cfg.Transfer.MaxConcurrent < 1 || cfg.Transfer.MaxConcurrent > constants.MaxConcurrentTransfers {
		return ErrInvalidMaxConcurrent
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return ErrInvalidLogLevel
	}
	return nil
}

// DialTimeout returns the SSH dial timeout.
func (cfg *AppConfig) DialTimeout() time.Duration {
	return time.Duration(cfg.SSH.DialTimeoutSeconds) * time.Second
}

// KeepAlive returns the SSH keepalive interval, 0 when disabled.
func (cfg *AppConfig) KeepAlive() time.Duration {
	return time.Duration(cfg.SSH.KeepAliveSeconds) * time.Second
}

// ProgressInterval returns the progress throttle interval.
func (cfg *AppConfig) ProgressInterval() time.Duration {
	return time.Duration(cfg.Transfer.ProgressIntervalMS) * time.Millisecond
}

// SocketPath returns the configured bridge socket or the default.
func (cfg *AppConfig) SocketPath() string {
	if cfg.Bridge.SocketPath != "" {
		return cfg.Bridge.SocketPath
	}
	return DefaultSocketPath()
}

// DownloadsDirectory returns the configured download directory or the
// platform default.
func (cfg *AppConfig) DownloadsDirectory() string {
	if cfg.Transfer.DownloadDir != "" {
		return cfg.Transfer.DownloadDir
	}
	return DefaultDownloadsDirectory()
}
