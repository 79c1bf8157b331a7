package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/sftpdesk/sftpdesk/internal/version"
)

// newVersionCmd creates the 'version' command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sftpdesk %s\n", version.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "  built:   %s\n", version.BuildTime)
			fmt.Fprintf(cmd.OutOrStdout(), "  go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
