package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sftpdesk/sftpdesk/internal/core"
	"github.com/sftpdesk/sftpdesk/internal/localfs"
)

// newTestCmd creates the 'test' command.
func newTestCmd() *cobra.Command {
	var cf connFlags

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Check that a server accepts the credentials",
		Long: `Connect, authenticate and disconnect without keeping a session.

Examples:
  sftpdesk test --host files.example.com --user alice
  sftpdesk test --profile backup`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cf.validate(); err != nil {
				return err
			}
			e, err := newEngine("cli")
			if err != nil {
				return err
			}
			defer e.Close()

			password, err := cf.resolvePassword(e)
			if err != nil {
				return err
			}
			params := cf.params(password)
			if cf.profile != "" {
				p, err := e.Profiles().Get(cf.profile)
				if err != nil {
					return err
				}
				params = p.Params(password)
			}

			msg, err := e.TestConnection(cmd.Context(), params)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", msg)
			return nil
		},
	}
	addConnectionFlags(cmd, &cf)
	return cmd
}

// newInfoCmd creates the 'info' command.
func newInfoCmd() *cobra.Command {
	var cf connFlags

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show connection status and the remote working directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), &cf, func(ctx context.Context, e *core.Engine) error {
				msg, err := e.GetConnectionInfo(ctx, cliSessionID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			})
		},
	}
	addConnectionFlags(cmd, &cf)
	return cmd
}

// newListCmd creates the 'ls' command.
func newListCmd() *cobra.Command {
	var (
		cf       connFlags
		showAll  bool
		longForm bool
	)

	cmd := &cobra.Command{
		Use:   "ls [remote-dir]",
		Short: "List a remote directory",
		Long: `List a remote directory in the order the server returns it.

Hidden entries (names starting with '.') are omitted unless --all is given.

Examples:
  sftpdesk ls --host files.example.com --user alice /srv/data
  sftpdesk ls -l --profile backup`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return withSession(cmd.Context(), &cf, func(ctx context.Context, e *core.Engine) error {
				entries, err := e.ListDirectory(ctx, cliSessionID, dir)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if !longForm {
					for _, entry := range entries {
						if !showAll && localfs.IsHiddenName(entry.Name) {
							continue
						}
						name := entry.Name
						if entry.IsDir {
							name += "/"
						}
						fmt.Fprintln(out, name)
					}
					return nil
				}

				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "MODE\tSIZE\tMODIFIED\tNAME")
				for _, entry := range entries {
					if !showAll && localfs.IsHiddenName(entry.Name) {
						continue
					}
					modified := "-"
					if entry.Modified != nil {
						modified = *entry.Modified
					}
					size := formatSize(entry.Size)
					name := entry.Name
					if entry.IsDir {
						size = "-"
						name += "/"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", entry.Permissions, size, modified, name)
				}
				return tw.Flush()
			})
		},
	}
	addConnectionFlags(cmd, &cf)
	cmd.Flags().BoolVarP(&showAll, "all", "a", false, "Include hidden entries")
	cmd.Flags().BoolVarP(&longForm, "long", "l", false, "Show mode, size and modification time")
	return cmd
}

// newMkdirCmd creates the 'mkdir' command.
func newMkdirCmd() *cobra.Command {
	var cf connFlags

	cmd := &cobra.Command{
		Use:   "mkdir <remote-dir>",
		Short: "Create a remote directory (mode 0755)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), &cf, func(ctx context.Context, e *core.Engine) error {
				msg, err := e.CreateDirectory(ctx, cliSessionID, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", msg)
				return nil
			})
		},
	}
	addConnectionFlags(cmd, &cf)
	return cmd
}

// newRemoveCmd creates the 'rm' command.
func newRemoveCmd() *cobra.Command {
	var (
		cf    connFlags
		isDir bool
	)

	cmd := &cobra.Command{
		Use:   "rm <remote-path>",
		Short: "Delete a remote file, or an empty directory with --dir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), &cf, func(ctx context.Context, e *core.Engine) error {
				msg, err := e.Delete(ctx, cliSessionID, args[0], isDir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", msg)
				return nil
			})
		},
	}
	addConnectionFlags(cmd, &cf)
	cmd.Flags().BoolVarP(&isDir, "dir", "d", false, "Remove an empty directory")
	return cmd
}

// formatSize renders a byte count with binary units.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
