package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sftpdesk/sftpdesk/internal/config"
)

// TestConfigCmd tests the config command group
func TestConfigCmd(t *testing.T) {
	cmd := newConfigCmd()
	if cmd.Use != "config" {
		t.Errorf("Expected Use='config', got '%s'", cmd.Use)
	}

	expectedSubs := []string{"init", "show", "path"}
	subcommands := cmd.Commands()
	if len(subcommands) != len(expectedSubs) {
		t.Errorf("Expected %d subcommands, got %d", len(expectedSubs), len(subcommands))
	}

	found := make(map[string]bool)
	for _, sub := range subcommands {
		found[sub.Name()] = true
		if sub.Short == "" {
			t.Errorf("Subcommand '%s' has no short description", sub.Name())
		}
	}
	for _, expected := range expectedSubs {
		if !found[expected] {
			t.Errorf("Subcommand '%s' not found", expected)
		}
	}
}

// TestConfigInitFlags tests the config init command structure
func TestConfigInitFlags(t *testing.T) {
	cmd := newConfigInitCmd()
	for _, name := range []string{"force", "defaults"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("--%s flag not found", name)
		}
	}
}

// TestConfigInitDefaults writes defaults and refuses to overwrite without --force
func TestConfigInitDefaults(t *testing.T) {
	resetGlobals(t)
	path := filepath.Join(t.TempDir(), "sftpdesk.conf")

	out, err := runCLI(t, "--config", path, "config", "init", "--defaults")
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(out, "Configuration saved to: "+path) {
		t.Errorf("unexpected output: %q", out)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Transfer.ChunkSize != config.NewAppConfig().Transfer.ChunkSize {
		t.Errorf("Expected default chunk size, got %d", cfg.Transfer.ChunkSize)
	}

	out, err = runCLI(t, "--config", path, "config", "init", "--defaults")
	if err != nil {
		t.Fatalf("second config init failed: %v", err)
	}
	if !strings.Contains(out, "already exists") {
		t.Errorf("Expected 'already exists', got %q", out)
	}
}

// TestConfigInitInteractive answers the prompts from stdin
func TestConfigInitInteractive(t *testing.T) {
	resetGlobals(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "sftpdesk.conf")
	downloads := filepath.Join(dir, "dl")

	stdin = strings.NewReader("/etc/ssh/known\n30\nzero\n8\n" + downloads + "\ndebug\n")
	if _, err := runCLI(t, "--config", path, "config", "init"); err != nil {
		t.Fatalf("config init failed: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SSH.KnownHosts != "/etc/ssh/known" {
		t.Errorf("known_hosts = %q", cfg.SSH.KnownHosts)
	}
	if cfg.SSH.DialTimeoutSeconds != 30 {
		t.Errorf("dial timeout = %d", cfg.SSH.DialTimeoutSeconds)
	}
	// "zero" is rejected and the prompt repeats
	if cfg.Transfer.MaxConcurrent != 8 {
		t.Errorf("max concurrent = %d", cfg.Transfer.MaxConcurrent)
	}
	if cfg.Transfer.DownloadDir != downloads {
		t.Errorf("download dir = %q", cfg.Transfer.DownloadDir)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
}

// TestConfigShow prints the effective values
func TestConfigShow(t *testing.T) {
	resetGlobals(t)
	path := filepath.Join(t.TempDir(), "absent.conf")

	out, err := runCLI(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	for _, want := range []string{"not found, showing defaults", "[transfer]", "chunk_size           = 8192", "max_concurrent       = 4"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

// TestConfigShowMalformed reports parse errors
func TestConfigShowMalformed(t *testing.T) {
	resetGlobals(t)
	path := filepath.Join(t.TempDir(), "bad.conf")
	if err := os.WriteFile(path, []byte("[transfer\nchunk_size = 1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, "--config", path, "config", "show"); err == nil {
		t.Error("Expected an error for a malformed file")
	}
}

// TestConfigPath prints --config when given
func TestConfigPath(t *testing.T) {
	resetGlobals(t)
	out, err := runCLI(t, "--config", "/tmp/custom.conf", "config", "path")
	if err != nil {
		t.Fatalf("config path failed: %v", err)
	}
	if strings.TrimSpace(out) != "/tmp/custom.conf" {
		t.Errorf("Expected /tmp/custom.conf, got %q", out)
	}
}
