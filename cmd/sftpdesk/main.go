// sftpdesk - SFTP sessions and transfers for the command line and for
// desktop frontends over a local socket.
package main

import (
	"os"

	"github.com/sftpdesk/sftpdesk/internal/cli"
	"github.com/sftpdesk/sftpdesk/internal/version"
)

// Version information, overridden by ldflags in release builds.
var (
	Version   = "v0.3.0-dev"
	BuildTime = "unknown"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
