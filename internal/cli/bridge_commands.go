package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sftpdesk/sftpdesk/internal/bridge"
	"github.com/sftpdesk/sftpdesk/internal/constants"
	"github.com/sftpdesk/sftpdesk/internal/services"
)

// dialBridge connects to a running 'sftpdesk serve'.
func dialBridge(ctx context.Context, socketPath string) (*bridge.Client, error) {
	path := socketPath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.SocketPath()
	}

	dialCtx, cancel := context.WithTimeout(ctx, constants.BridgeDialTimeout)
	defer cancel()
	client, err := bridge.Dial(dialCtx, path)
	if err != nil {
		return nil, fmt.Errorf("is 'sftpdesk serve' running? %w", err)
	}
	return client, nil
}

// newTransfersCmd creates the 'transfers' command.
func newTransfersCmd() *cobra.Command {
	var (
		socketPath string
		clearDone  bool
	)

	cmd := &cobra.Command{
		Use:   "transfers",
		Short: "List transfers of a running 'sftpdesk serve'",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialBridge(cmd.Context(), socketPath)
			if err != nil {
				return err
			}
			defer client.Close()

			if clearDone {
				var n int
				if err := client.Call(cmd.Context(), bridge.CmdClearFinishedTransfers, nil, &n); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d finished transfer(s)\n", n)
				return nil
			}

			var list services.TransferList
			if err := client.Call(cmd.Context(), bridge.CmdListTransfers, nil, &list); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list.Transfers) == 0 {
				fmt.Fprintln(out, "No transfers")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDIRECTION\tSTATE\tPROGRESS\tNAME")
			for _, t := range list.Transfers {
				done := formatSize(t.Bytes)
				if t.Size > 0 {
					done = fmt.Sprintf("%s / %s", formatSize(t.Bytes), formatSize(t.Size))
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Direction, t.State, done, t.Name)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			s := list.Stats
			fmt.Fprintf(out, "\n%d queued, %d active, %d completed, %d failed, %d cancelled\n",
				s.Queued, s.Active, s.Completed, s.Failed, s.Cancelled)
			return nil
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "", "Bridge socket path")
	cmd.Flags().BoolVar(&clearDone, "clear", false, "Remove finished transfers from the list")
	return cmd
}

// newCancelCmd creates the 'cancel' command.
func newCancelCmd() *cobra.Command {
	var (
		socketPath string
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "cancel [transfer-id]",
		Short: "Cancel a transfer of a running 'sftpdesk serve'",
		Long: `Cancel one transfer by id, or every active transfer with --all.

The transfer stops at its next chunk boundary and reports a final
cancelled progress event to subscribed clients.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("give either a transfer id or --all")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client, err := dialBridge(ctx, socketPath)
			if err != nil {
				return err
			}
			defer client.Close()

			if all {
				var n int
				if err := client.Call(ctx, bridge.CmdCancelAllTransfers, nil, &n); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %d transfer(s)\n", n)
				return nil
			}

			var msg string
			err = client.Call(ctx, bridge.CmdCancelTransfer, map[string]string{"transfer_id": args[0]}, &msg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "", "Bridge socket path")
	cmd.Flags().BoolVar(&all, "all", false, "Cancel every active transfer")
	return cmd
}
