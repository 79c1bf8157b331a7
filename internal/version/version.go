// Package version holds the build identity shared by the CLI, the bridge
// and the engine.
package version

// Version and BuildTime are injected by cmd/sftpdesk, which in turn takes
// them from -ldflags "-X main.Version=... -X main.BuildTime=...".
var (
	Version   = "v0.3.0-dev"
	BuildTime = "unknown"
)
