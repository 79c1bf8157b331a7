package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sftpdesk/sftpdesk/internal/config"
)

// configPath returns --config or the default configuration path.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage sftpdesk configuration",
		Long: `Configuration management commands for sftpdesk.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var (
		force    bool
		defaults bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for sftpdesk.

The configuration is saved to ~/.config/sftpdesk/sftpdesk.conf unless
--config says otherwise. Press Enter to keep a default.

Use --defaults to write the defaults without prompting and --force to
overwrite an existing file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view it.")
					return nil
				}
			}

			cfg := config.NewAppConfig()
			if !defaults {
				fmt.Fprintln(out, "sftpdesk Configuration Setup")
				fmt.Fprintln(out, "============================")
				if err := promptConfig(cfg); err != nil {
					return err
				}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			GetLogger().Info().Str("path", path).Msg("Configuration saved")
			fmt.Fprintf(out, "✓ Configuration saved to: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Write defaults without prompting")

	return cmd
}

// promptConfig asks for the settings people usually change.
func promptConfig(cfg *config.AppConfig) error {
	var err error

	if cfg.SSH.KnownHosts, err = promptString("known_hosts file (empty accepts any host key)", cfg.SSH.KnownHosts); err != nil {
		return err
	}
	if cfg.SSH.DialTimeoutSeconds, err = promptInt("Dial timeout in seconds", cfg.SSH.DialTimeoutSeconds); err != nil {
		return err
	}
	if cfg.Transfer.MaxConcurrent, err = promptInt("Concurrent transfers", cfg.Transfer.MaxConcurrent); err != nil {
		return err
	}
	if cfg.Transfer.DownloadDir, err = promptString("Download directory", config.DefaultDownloadsDirectory()); err != nil {
		return err
	}
	if cfg.Logging.Level, err = promptString("Log level (debug, info, warn, error)", cfg.Logging.Level); err != nil {
		return err
	}
	return nil
}

func promptInt(label string, def int) (int, error) {
	for {
		s, err := promptString(label, strconv.Itoa(def))
		if err != nil {
			return 0, err
		}
		v, err := strconv.Atoi(s)
		if err == nil && v > 0 {
			return v, nil
		}
		fmt.Fprintln(os.Stderr, "  Please enter a positive number.")
	}
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			source := path
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				source = path + " (not found, showing defaults)"
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration: %s\n\n", source)
			fmt.Fprintln(out, "[ssh]")
			fmt.Fprintf(out, "  dial_timeout_seconds = %d\n", cfg.SSH.DialTimeoutSeconds)
			fmt.Fprintf(out, "  known_hosts          = %s\n", orNone(cfg.SSH.KnownHosts))
			fmt.Fprintf(out, "  max_packet           = %d\n", cfg.SSH.MaxPacket)
			fmt.Fprintf(out, "  concurrent_reads     = %t\n", cfg.SSH.ConcurrentReads)
			fmt.Fprintf(out, "  keepalive_seconds    = %d\n", cfg.SSH.KeepAliveSeconds)
			fmt.Fprintln(out, "[transfer]")
			fmt.Fprintf(out, "  chunk_size           = %d\n", cfg.Transfer.ChunkSize)
			fmt.Fprintf(out, "  progress_interval_ms = %d\n", cfg.Transfer.ProgressIntervalMS)
			fmt.Fprintf(out, "  progress_step_bytes  = %d\n", cfg.Transfer.ProgressStepBytes)
			fmt.Fprintf(out, "  max_concurrent       = %d\n", cfg.Transfer.MaxConcurrent)
			fmt.Fprintf(out, "  check_disk_space     = %t\n", cfg.Transfer.CheckDiskSpace)
			fmt.Fprintf(out, "  download_dir         = %s\n", cfg.DownloadsDirectory())
			fmt.Fprintln(out, "[bridge]")
			fmt.Fprintf(out, "  socket_path          = %s\n", cfg.SocketPath())
			fmt.Fprintln(out, "[metrics]")
			fmt.Fprintf(out, "  listen_addr          = %s\n", orNone(cfg.Metrics.ListenAddr))
			fmt.Fprintln(out, "[logging]")
			fmt.Fprintf(out, "  level                = %s\n", cfg.Logging.Level)
			fmt.Fprintf(out, "  file                 = %s\n", orNone(cfg.Logging.File))
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
