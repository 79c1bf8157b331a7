package models

// FileEntry is one row of a remote directory listing.
// Name is the display name (see listing.DisplayName), Path the full remote path.
type FileEntry struct {
	Name        string  `json:"name"`
	Path        string  `json:"path"`
	Size        int64   `json:"size"`
	IsDir       bool    `json:"is_dir"`
	Modified    *string `json:"modified"`    // RFC 3339, nil when the server reports no mtime
	Permissions string  `json:"permissions"` // octal, "0" when unknown
}
