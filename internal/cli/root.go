// Package cli provides the command-line interface for sftpdesk.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sftpdesk/sftpdesk/internal/config"
	"github.com/sftpdesk/sftpdesk/internal/core"
	"github.com/sftpdesk/sftpdesk/internal/logging"
	"github.com/sftpdesk/sftpdesk/internal/version"
)

var (
	// Global flags
	cfgFile      string
	profilesFile string
	verbose      bool
	debug        bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sftpdesk",
		Short: "sftpdesk - SFTP sessions, transfers and a local bridge for desktop frontends",
		Long: `sftpdesk ` + version.Version + ` - Built: ` + version.BuildTime + `
Connect to SFTP servers, browse directories and move files with progress
and cancellation.

CLI Mode (default):
  One-shot commands: test, ls, get, put, mkdir, rm, info.

Serve Mode (sftpdesk serve):
  Runs the engine behind a local socket speaking newline-delimited JSON,
  for a desktop frontend to drive.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultCLILogger()
			if verbose || debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&profilesFile, "profiles", "", "Connection profiles file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for sftpdesk.

  bash:       sftpdesk completion bash > /etc/bash_completion.d/sftpdesk
  zsh:        sftpdesk completion zsh > "${fpath[1]}/_sftpdesk"
  fish:       sftpdesk completion fish > ~/.config/fish/completions/sftpdesk.fish
  powershell: sftpdesk completion powershell >> $PROFILE`,
	}
	completionCmd.AddCommand(
		&cobra.Command{
			Use:   "bash",
			Short: "Generate bash completion script",
			RunE: func(cmd *cobra.Command, args []string) error {
				return rootCmd.Root().GenBashCompletionV2(cmd.OutOrStdout(), true)
			},
		},
		&cobra.Command{
			Use:   "zsh",
			Short: "Generate zsh completion script",
			RunE: func(cmd *cobra.Command, args []string) error {
				return rootCmd.Root().GenZshCompletion(cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "fish",
			Short: "Generate fish completion script",
			RunE: func(cmd *cobra.Command, args []string) error {
				return rootCmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
			},
		},
		&cobra.Command{
			Use:   "powershell",
			Short: "Generate PowerShell completion script",
			RunE: func(cmd *cobra.Command, args []string) error {
				return rootCmd.Root().GenPowerShellCompletion(cmd.OutOrStdout())
			},
		},
	)
	rootCmd.AddCommand(completionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Repeated Ctrl+C only repeats the message; cancellation is already under way.
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived %v, cancelling operations...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.ExecuteContext(rootContext)

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newTestCmd())
	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newPutCmd())
	rootCmd.AddCommand(newMkdirCmd())
	rootCmd.AddCommand(newRemoveCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newTransfersCmd())
	rootCmd.AddCommand(newCancelCmd())
	rootCmd.AddCommand(newProfilesCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// loadConfig reads --config, falling back to the default location.
func loadConfig() (*config.AppConfig, error) {
	path := cfgFile
	if path == "" {
		p, err := config.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

// newEngine builds the engine commands run against. Callers must Close it.
// Tests replace it to point at an in-memory server.
var newEngine = buildEngine

func buildEngine(mode string) (*core.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	e, err := core.NewEngine(cfg, core.Options{Mode: mode, ProfilesPath: profilesFile})
	if err != nil {
		return nil, err
	}
	// The engine applies [logging] level; the command line wins.
	if verbose || debug {
		logging.SetGlobalLevel(zerolog.DebugLevel)
	}
	return e, nil
}
