// Package diskspace checks free space on the filesystem that will receive a
// download before any bytes are written.
package diskspace

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sftpdesk/sftpdesk/internal/constants"
)

// InsufficientSpaceError reports a download that would not fit. Required
// includes the safety margin.
type InsufficientSpaceError struct {
	Path      string
	Required  int64
	Available int64
}

func (e *InsufficientSpaceError) Error() string {
	const mib = 1 << 20
	return fmt.Sprintf("not enough free space for %s: %.1f MiB needed, %.1f MiB free",
		e.Path, float64(e.Required)/mib, float64(e.Available)/mib)
}

// CheckAvailableSpace returns an InsufficientSpaceError when the filesystem
// holding targetPath cannot take requiredBytes plus the safety margin.
// targetPath itself need not exist, but its directory must. When free space
// cannot be determined (network or virtual filesystems) the check passes
// and the write is left to fail on its own.
func CheckAvailableSpace(targetPath string, requiredBytes int64) error {
	if requiredBytes <= 0 {
		return nil
	}
	available, ok := availableBytes(filepath.Dir(targetPath))
	if !ok {
		return nil
	}
	return check(targetPath, requiredBytes, available)
}

func check(targetPath string, requiredBytes, available int64) error {
	required := int64(float64(requiredBytes) * (1 + constants.DiskSpaceSafetyMargin))
	if available < required {
		return &InsufficientSpaceError{Path: targetPath, Required: required, Available: available}
	}
	return nil
}

// IsInsufficientSpaceError reports whether err wraps an InsufficientSpaceError.
func IsInsufficientSpaceError(err error) bool {
	var e *InsufficientSpaceError
	return errors.As(err, &e)
}
