package localfs

import (
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ListOptions filters ListDirectory.
type ListOptions struct {
	// IncludeHidden keeps dot-files.
	IncludeHidden bool
	// FilesOnly keeps regular files and drops directories, links and devices.
	FilesOnly bool
}

// Entry is one local directory entry. Size is 0 for directories.
type Entry struct {
	Path    string
	Name    string
	Size    int64
	IsDir   bool
	ModTime time.Time
}

// ListDirectory returns the entries of dir sorted by name.
func (s *Store) ListDirectory(dir string, opts ListOptions) ([]Entry, error) {
	infos, err := s.fs.ReadDir(s.resolve(dir))
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		if !opts.IncludeHidden && IsHiddenName(fi.Name()) {
			continue
		}
		if opts.FilesOnly && !fi.Mode().IsRegular() {
			continue
		}
		e := Entry{
			Path:    filepath.Join(dir, fi.Name()),
			Name:    fi.Name(),
			IsDir:   fi.IsDir(),
			ModTime: fi.ModTime(),
		}
		if !e.IsDir {
			e.Size = fi.Size()
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// IsHiddenName reports whether a base name is a dot-file. "." and ".." are
// directory references, not hidden files.
func IsHiddenName(name string) bool {
	return name != "." && name != ".." && strings.HasPrefix(name, ".")
}
