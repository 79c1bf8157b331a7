// Package profiles stores saved connections in a TOML file beside the
// configuration. Profiles are identified by uuid and deduplicated by
// host, port and username.
package profiles

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/sftpdesk/sftpdesk/internal/constants"
	"github.com/sftpdesk/sftpdesk/internal/models"
)

// ErrNotFound is returned when no profile matches an id or name.
var ErrNotFound = errors.New("profile not found")

// Profile is one saved connection. Password is only kept when SavePassword
// is set.
type Profile struct {
	ID           string     `toml:"id" json:"id"`
	Name         string     `toml:"name" json:"name"`
	Host         string     `toml:"host" json:"host"`
	Port         uint16     `toml:"port" json:"port"`
	Username     string     `toml:"username" json:"username"`
	Password     string     `toml:"password,omitempty" json:"password,omitempty"`
	SavePassword bool       `toml:"save_password" json:"save_password"`
	Description  string     `toml:"description,omitempty" json:"description,omitempty"`
	CreatedAt    time.Time  `toml:"created_at" json:"created_at"`
	LastUsed     *time.Time `toml:"last_used,omitempty" json:"last_used,omitempty"`
}

// Params returns the dial parameters for this profile. password overrides
// the saved one when non-empty.
func (p Profile) Params(password string) models.ConnectParams {
	if password == "" {
		password = p.Password
	}
	return models.ConnectParams{Host: p.Host, Port: p.Port, Username: p.Username, Password: password}
}

func (p Profile) sameEndpoint(o Profile) bool {
	return p.Host == o.Host && p.Port == o.Port && p.Username == o.Username
}

func (p Profile) sortTime() time.Time {
	if p.LastUsed != nil {
		return *p.LastUsed
	}
	return p.CreatedAt
}

// Stats summarizes the saved profiles.
type Stats struct {
	Total        int `json:"total"`
	WithPassword int `json:"with_password"`
	RecentlyUsed int `json:"recently_used"`
}

type fileFormat struct {
	Profiles []Profile `toml:"profiles"`
}

// Store is a file-backed profile list. Every mutation rewrites the file.
type Store struct {
	path string
	now  func() time.Time

	mu       sync.Mutex
	profiles []Profile
}

// Open loads the store at path. A missing file is an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, now: time.Now}
	list, err := readFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	s.profiles = list
	s.sortLocked()
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// List returns profiles ordered by last use (or creation) time, newest first.
func (s *Store) List() []Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Profile(nil), s.profiles...)
}

// Save adds p, or updates the profile with the same host, port and
// username while keeping its id and creation time. Returns the stored id.
func (s *Store) Save(p Profile) (string, error) {
	if strings.TrimSpace(p.Host) == "" {
		return "", errors.New("host is required")
	}
	if p.Port == 0 {
		p.Port = constants.DefaultSSHPort
	}
	if p.Name == "" {
		p.Name = fmt.Sprintf("%s@%s", p.Username, p.Host)
	}
	if !p.SavePassword {
		p.Password = ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.profiles {
		if s.profiles[i].sameEndpoint(p) {
			p.ID = s.profiles[i].ID
			p.CreatedAt = s.profiles[i].CreatedAt
			if p.LastUsed == nil {
				p.LastUsed = s.profiles[i].LastUsed
			}
			s.profiles[i] = p
			return p.ID, s.persistLocked()
		}
	}

	p.ID = uuid.NewString()
	p.CreatedAt = s.now().UTC()
	s.profiles = append(s.profiles, p)
	return p.ID, s.persistLocked()
}

// Update applies fn to the profile with the given id. The id and creation
// time cannot be changed.
func (s *Store) Update(id string, fn func(*Profile)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p := s.profiles[i]
	fn(&p)
	p.ID = s.profiles[i].ID
	p.CreatedAt = s.profiles[i].CreatedAt
	if !p.SavePassword {
		p.Password = ""
	}
	s.profiles[i] = p
	return s.persistLocked()
}

// Delete removes the profile with the given id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.profiles = append(s.profiles[:i], s.profiles[i+1:]...)
	return s.persistLocked()
}

// Get finds a profile by id, then by exact name.
func (s *Store) Get(idOrName string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexLocked(idOrName); i >= 0 {
		return s.profiles[i], nil
	}
	for _, p := range s.profiles {
		if p.Name == idOrName {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, idOrName)
}

// Touch records that the profile was just used.
func (s *Store) Touch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := s.now().UTC()
	s.profiles[i].LastUsed = &now
	return s.persistLocked()
}

// Stats counts profiles with saved passwords and those used within the
// recent window.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-constants.RecentProfileWindow)
	st := Stats{Total: len(s.profiles)}
	for _, p := range s.profiles {
		if p.SavePassword {
			st.WithPassword++
		}
		if p.LastUsed != nil && p.LastUsed.After(cutoff) {
			st.RecentlyUsed++
		}
	}
	return st
}

// Export writes all profiles to path in the store's TOML format.
func (s *Store) Export(path string) error {
	s.mu.Lock()
	list := append([]Profile(nil), s.profiles...)
	s.mu.Unlock()
	return writeFile(path, list)
}

// Import adds profiles from a file written by Export, skipping endpoints
// that already exist. Imported profiles get fresh ids. Returns how many
// were added.
func (s *Store) Import(path string) (int, error) {
	incoming, err := readFile(path)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, p := range incoming {
		if p.Host == "" || s.hasEndpointLocked(p) {
			continue
		}
		p.ID = uuid.NewString()
		if p.CreatedAt.IsZero() {
			p.CreatedAt = s.now().UTC()
		}
		if !p.SavePassword {
			p.Password = ""
		}
		s.profiles = append(s.profiles, p)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	return added, s.persistLocked()
}

func (s *Store) indexLocked(id string) int {
	for i, p := range s.profiles {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) hasEndpointLocked(p Profile) bool {
	for _, existing := range s.profiles {
		if existing.sameEndpoint(p) {
			return true
		}
	}
	return false
}

func (s *Store) sortLocked() {
	sort.SliceStable(s.profiles, func(i, j int) bool {
		return s.profiles[i].sortTime().After(s.profiles[j].sortTime())
	})
}

func (s *Store) persistLocked() error {
	s.sortLocked()
	return writeFile(s.path, s.profiles)
}

func readFile(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileFormat
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return f.Profiles, nil
}

// writeFile replaces path atomically. Saved passwords live in the file, so
// it is owner-only on Unix.
func writeFile(path string, list []Profile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(fileFormat{Profiles: list}); err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set profile permissions: %w", err)
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save profiles: %w", err)
	}
	return nil
}
