package listing

import (
	"path"
	"strings"
)

// DisplayName derives the name shown for a raw entry name reported by the
// server. Windows-hosted servers may report drive roots ("C:") or
// backslash-separated paths where a POSIX server reports a bare name.
func DisplayName(raw string) string {
	if !strings.Contains(raw, `\`) && !isDrive(raw) {
		base := path.Base(raw)
		if base != "" && base != "." && base != ".." && base != "/" {
			return base
		}
	}

	if isDrive(raw) {
		return raw[:1] + "-drive"
	}

	if strings.Contains(raw, `\`) {
		parts := strings.Split(raw, `\`)
		for i := len(parts) - 1; i >= 0; i-- {
			if parts[i] != "" {
				return parts[i]
			}
		}
	}

	return raw
}

func isDrive(s string) bool {
	return len(s) == 2 && s[1] == ':'
}

// NormalizePath maps "" to "/". Every other path is used as given.
func NormalizePath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}
