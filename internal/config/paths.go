package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appDirName = "sftpdesk"

// ConfigDirectory returns the per-user sftpdesk directory.
//   - Windows: %APPDATA%\sftpdesk
//   - Unix: ~/.config/sftpdesk
func ConfigDirectory() (string, error) {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", errors.New("neither APPDATA nor USERPROFILE environment variable set")
			}
			appData = filepath.Join(userProfile, "AppData", "Roaming")
		}
		return filepath.Join(appData, appDirName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", appDirName), nil
}

// DefaultConfigPath returns the default path of sftpdesk.conf.
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sftpdesk.conf"), nil
}

// DefaultProfilesPath returns the default path of the saved connections file.
func DefaultProfilesPath() (string, error) {
	dir, err := ConfigDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "profiles.toml"), nil
}

// DefaultSocketPath returns the bridge socket path, falling back to the
// temp directory when no home directory is available.
func DefaultSocketPath() string {
	dir, err := ConfigDirectory()
	if err != nil {
		return filepath.Join(os.TempDir(), fmt.Sprintf("sftpdesk-%d.sock", os.Getuid()))
	}
	return filepath.Join(dir, "sftpdesk.sock")
}

// DefaultDownloadsDirectory returns the user's downloads directory:
// $XDG_DOWNLOAD_DIR when set, else ~/Downloads, else the working directory.
func DefaultDownloadsDirectory() string {
	if runtime.GOOS != "windows" {
		if dir := os.Getenv("XDG_DOWNLOAD_DIR"); dir != "" {
			if home, err := os.UserHomeDir(); err == nil {
				dir = strings.Replace(dir, "$HOME", home, 1)
			}
			return dir
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		if wd, err := os.Getwd(); err == nil {
			return wd
		}
		return "."
	}
	return filepath.Join(home, "Downloads")
}
