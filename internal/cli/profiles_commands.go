package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sftpdesk/sftpdesk/internal/config"
	"github.com/sftpdesk/sftpdesk/internal/profiles"
)

// openProfiles opens --profiles or the default profiles file.
func openProfiles() (*profiles.Store, error) {
	path := profilesFile
	if path == "" {
		p, err := config.DefaultProfilesPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return profiles.Open(path)
}

// newProfilesCmd creates the 'profiles' command group.
func newProfilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage saved connection profiles",
		Long: `Saved connections, stored as TOML beside the configuration file.

Commands:
  list    - List profiles, most recently used first
  save    - Save or update a profile
  delete  - Delete a profile
  export  - Write all profiles to a TOML file
  import  - Add profiles from a TOML file, skipping duplicates
  stats   - Show profile counts`,
	}

	cmd.AddCommand(newProfilesListCmd())
	cmd.AddCommand(newProfilesSaveCmd())
	cmd.AddCommand(newProfilesDeleteCmd())
	cmd.AddCommand(newProfilesExportCmd())
	cmd.AddCommand(newProfilesImportCmd())
	cmd.AddCommand(newProfilesStatsCmd())
	return cmd
}

func newProfilesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openProfiles()
			if err != nil {
				return err
			}
			list := store.List()
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No saved profiles")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tENDPOINT\tPASSWORD\tLAST USED\tID")
			for _, p := range list {
				saved := "no"
				if p.Password != "" {
					saved = "saved"
				}
				last := "never"
				if p.LastUsed != nil {
					last = p.LastUsed.Local().Format(time.DateTime)
				}
				fmt.Fprintf(tw, "%s\t%s@%s:%d\t%s\t%s\t%s\n", p.Name, p.Username, p.Host, p.Port, saved, last, p.ID)
			}
			return tw.Flush()
		},
	}
}

func newProfilesSaveCmd() *cobra.Command {
	var p profiles.Profile

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save a connection profile",
		Long: `Save a connection profile. A profile with the same host, port and user
is updated in place, keeping its id.

The password is only stored with --save-password; it is prompted for
when --password is omitted.

Example:
  sftpdesk profiles save --name backup --host files.example.com --user alice`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if p.Host == "" {
				return fmt.Errorf("--host is required")
			}
			if p.SavePassword && p.Password == "" {
				pw, err := promptPassword(fmt.Sprintf("Password for %s@%s: ", p.Username, p.Host))
				if err != nil {
					return err
				}
				p.Password = pw
			}

			store, err := openProfiles()
			if err != nil {
				return err
			}
			id, err := store.Save(p)
			if err != nil {
				return err
			}
			GetLogger().Debug().Str("id", id).Str("path", store.Path()).Msg("profile saved")
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved profile %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&p.Name, "name", "", "Profile name (default: user@host)")
	cmd.Flags().StringVarP(&p.Host, "host", "H", "", "Server host name or address")
	cmd.Flags().Uint16VarP(&p.Port, "port", "p", 22, "Server port")
	cmd.Flags().StringVarP(&p.Username, "user", "u", "", "User name")
	cmd.Flags().StringVar(&p.Password, "password", "", "Password to store (only kept with --save-password)")
	cmd.Flags().BoolVar(&p.SavePassword, "save-password", false, "Store the password in the profiles file")
	cmd.Flags().StringVar(&p.Description, "description", "", "Free-form description")
	return cmd
}

func newProfilesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id-or-name>",
		Short: "Delete a saved profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openProfiles()
			if err != nil {
				return err
			}
			p, err := store.Get(args[0])
			if err != nil {
				return err
			}
			if err := store.Delete(p.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted profile %s\n", p.Name)
			return nil
		},
	}
}

func newProfilesExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Export profiles to a TOML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openProfiles()
			if err != nil {
				return err
			}
			if err := store.Export(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %d profile(s) to %s\n", len(store.List()), args[0])
			return nil
		},
	}
}

func newProfilesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import profiles from a TOML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openProfiles()
			if err != nil {
				return err
			}
			n, err := store.Import(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Imported %d profile(s)\n", n)
			return nil
		},
	}
}

func newProfilesStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show profile counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openProfiles()
			if err != nil {
				return err
			}
			s := store.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Profiles:        %d\n", s.Total)
			fmt.Fprintf(out, "With password:   %d\n", s.WithPassword)
			fmt.Fprintf(out, "Used this week:  %d\n", s.RecentlyUsed)
			return nil
		},
	}
}
