package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestNewAppConfig(t *testing.T) {
	cfg := NewAppConfig()

	if cfg.Transfer.ChunkSize != 8192 {
		t.Errorf("Expected ChunkSize=8192, got %d", cfg.Transfer.ChunkSize)
	}
	if cfg.Transfer.ProgressIntervalMS != 100 {
		t.Errorf("Expected ProgressIntervalMS=100, got %d", cfg.Transfer.ProgressIntervalMS)
	}
	if cfg.Transfer.ProgressStepBytes != 1<<20 {
		t.Errorf("Expected ProgressStepBytes=1MiB, got %d", cfg.Transfer.ProgressStepBytes)
	}
	if cfg.SSH.DialTimeoutSeconds != 15 {
		t.Errorf("Expected DialTimeoutSeconds=15, got %d", cfg.SSH.DialTimeoutSeconds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.conf"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transfer.MaxConcurrent != 4 {
		t.Errorf("Expected default MaxConcurrent=4, got %d", cfg.Transfer.MaxConcurrent)
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sftpdesk.conf")

	cfg := NewAppConfig()
	cfg.SSH.KnownHosts = "/home/me/.ssh/known_hosts"
	cfg.SSH.KeepAliveSeconds = 30
	cfg.SSH.ConcurrentReads = false
	cfg.Transfer.ChunkSize = 32768
	cfg.Transfer.MaxConcurrent = 8
	cfg.Transfer.CheckDiskSpace = false
	cfg.Transfer.DownloadDir = "/data/incoming"
	cfg.Bridge.SocketPath = "/run/user/1000/sftpdesk.sock"
	cfg.Metrics.ListenAddr = "127.0.0.1:9464"
	cfg.Logging.Level = "debug"
	cfg.Logging.File = "/var/log/sftpdesk.log"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if runtime.GOOS != "windows" {
		fi, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if fi.Mode().Perm() != 0600 {
			t.Errorf("Expected 0600, got %o", fi.Mode().Perm())
		}
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", *loaded, *cfg)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sftpdesk.conf")
	content := "[transfer]\nmax_concurrent = 2\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transfer.MaxConcurrent != 2 {
		t.Errorf("Expected MaxConcurrent=2, got %d", cfg.Transfer.MaxConcurrent)
	}
	if cfg.Transfer.ChunkSize != 8192 || !cfg.Transfer.CheckDiskSpace {
		t.Errorf("unset keys should keep defaults: %+v", cfg.Transfer)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.conf")
	if err := os.WriteFile(path, []byte("[transfer\nchunk_size"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected error for malformed file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		want   error
	}{
		{"dial timeout", func(c *AppConfig) { c.SSH.DialTimeoutSeconds = 0 }, ErrInvalidDialTimeout},
		{"max packet", func(c *AppConfig) { c.SSH.MaxPacket = 10 }, ErrInvalidMaxPacket},
		{"keepalive", func(c *AppConfig) { c.SSH.KeepAliveSeconds = -1 }, ErrInvalidKeepAlive},
		{"chunk size", func(c *AppConfig) { c.Transfer.ChunkSize = 100 }, ErrInvalidChunkSize},
		{"interval", func(c *AppConfig) { c.Transfer.ProgressIntervalMS = 1 }, ErrInvalidInterval},
		{"step", func(c *AppConfig) { c.Transfer.ProgressStepBytes = 1 }, ErrInvalidProgressStep},
		{"concurrency", func(c *AppConfig) { c.Transfer.MaxConcurrent = 33 }, ErrInvalidMaxConcurrent},
		{"log level", func(c *AppConfig) { c.Logging.Level = "loud" }, ErrInvalidLogLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewAppConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err != tt.want {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := NewAppConfig()
	if cfg.SocketPath() != DefaultSocketPath() {
		t.Error("SocketPath should fall back to the default")
	}
	cfg.Bridge.SocketPath = "/tmp/x.sock"
	if cfg.SocketPath() != "/tmp/x.sock" {
		t.Error("SocketPath should honour the override")
	}

	cfg.Transfer.DownloadDir = "/srv/dl"
	if cfg.DownloadsDirectory() != "/srv/dl" {
		t.Error("DownloadsDirectory should honour the override")
	}
}

func TestDefaultDownloadsDirectoryXDG(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("XDG only applies on Unix")
	}
	t.Setenv("XDG_DOWNLOAD_DIR", "/mnt/dl")
	if got := DefaultDownloadsDirectory(); got != "/mnt/dl" {
		t.Errorf("Expected /mnt/dl, got %s", got)
	}
}
