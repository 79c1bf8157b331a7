package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/sftpdesk/sftpdesk/internal/bridge"
	"github.com/sftpdesk/sftpdesk/internal/logging"
	"github.com/sftpdesk/sftpdesk/internal/metrics"
	"github.com/sftpdesk/sftpdesk/internal/version"
)

// newServeCmd creates the 'serve' command.
func newServeCmd() *cobra.Command {
	var (
		socketPath  string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine behind the local bridge socket",
		Long: `Run the sftpdesk engine for a desktop frontend.

The bridge listens on a Unix domain socket (mode 0600) and speaks
newline-delimited JSON: one request per line, one response per line,
plus progress and lifecycle events after a "subscribe" request.

With --metrics-addr (or [metrics] listen_addr) Prometheus metrics are
served on /metrics.

The process runs until interrupted. Shutdown cancels every transfer and
closes every session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine("serve")
			if err != nil {
				return err
			}
			defer e.Close()
			log := e.Logger()

			path := socketPath
			if path == "" {
				path = e.Config().SocketPath()
			}
			ln, err := bridge.Listen(path)
			if err != nil {
				return err
			}
			defer bridge.Cleanup(path)

			srv := bridge.NewServer(e)
			srv.Start(ln)
			defer srv.Stop()

			addr := metricsAddr
			if addr == "" {
				addr = e.Config().Metrics.ListenAddr
			}
			if addr != "" {
				stop, err := serveMetrics(addr, log.Component("metrics"))
				if err != nil {
					return err
				}
				defer stop()
				log.Info().Str("addr", addr).Msg("metrics listening")
			}

			log.Info().Str("version", version.Version).Str("socket", path).Msg("sftpdesk serving")
			fmt.Fprintf(cmd.ErrOrStderr(), "sftpdesk %s serving on %s (Ctrl+C to stop)\n", version.Version, path)

			<-cmd.Context().Done()
			log.Info().Msg("shutting down")
			return nil
		},
	}

	cmd.Flags().StringVar(&socketPath, "socket", "", "Bridge socket path (default: [bridge] socket_path or the config directory)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. 127.0.0.1:9464")
	return cmd
}

// serveMetrics starts the /metrics endpoint and returns its shutdown func.
// The listener is bound before returning so a busy port fails the command.
func serveMetrics(addr string, logger *logging.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn().Err(err).Msg("metrics server stopped")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}
