package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sftpdesk/sftpdesk/internal/core"
	"github.com/sftpdesk/sftpdesk/internal/models"
)

// cliSessionID names the single session a CLI command opens.
const cliSessionID = "cli"

// passwordEnv supplies the password non-interactively.
const passwordEnv = "SFTPDESK_PASSWORD"

// connFlags are the connection flags shared by every remote command.
type connFlags struct {
	host     string
	port     uint16
	user     string
	password string
	profile  string
}

func addConnectionFlags(cmd *cobra.Command, cf *connFlags) {
	cmd.Flags().StringVarP(&cf.profile, "profile", "P", "", "Saved profile id or name")
	cmd.Flags().StringVarP(&cf.host, "host", "H", "", "Server host name or address")
	cmd.Flags().Uint16VarP(&cf.port, "port", "p", 22, "Server port")
	cmd.Flags().StringVarP(&cf.user, "user", "u", "", "User name")
	cmd.Flags().StringVar(&cf.password, "password", "", "Password (prompted when omitted; also read from "+passwordEnv+")")
}

func (cf *connFlags) validate() error {
	if cf.profile == "" && cf.host == "" {
		return fmt.Errorf("either --host or --profile is required")
	}
	if cf.profile != "" && cf.host != "" {
		return fmt.Errorf("--host and --profile are mutually exclusive")
	}
	return nil
}

// resolvePassword returns the password from the flag, the environment or a
// prompt. A profile with a saved password skips the prompt.
func (cf *connFlags) resolvePassword(e *core.Engine) (string, error) {
	if cf.password != "" {
		return cf.password, nil
	}
	if env := os.Getenv(passwordEnv); env != "" {
		return env, nil
	}
	label := fmt.Sprintf("Password for %s@%s: ", cf.user, cf.host)
	if cf.profile != "" {
		p, err := e.Profiles().Get(cf.profile)
		if err != nil {
			return "", err
		}
		if p.Password != "" {
			return "", nil
		}
		label = fmt.Sprintf("Password for %s@%s: ", p.Username, p.Host)
	}
	return promptPassword(label)
}

func (cf *connFlags) params(password string) models.ConnectParams {
	return models.ConnectParams{Host: cf.host, Port: cf.port, Username: cf.user, Password: password}
}

// connect registers the CLI session on e.
func (cf *connFlags) connect(ctx context.Context, e *core.Engine) error {
	if err := cf.validate(); err != nil {
		return err
	}
	password, err := cf.resolvePassword(e)
	if err != nil {
		return err
	}
	if cf.profile != "" {
		_, err = e.ConnectProfile(ctx, cliSessionID, cf.profile, password)
		return err
	}
	p := cf.params(password)
	_, err = e.Connect(ctx, models.SessionInfo{
		ID:       cliSessionID,
		Name:     fmt.Sprintf("%s@%s", p.Username, p.Addr()),
		Host:     p.Host,
		Port:     p.Port,
		Username: p.Username,
		Password: p.Password,
	})
	return err
}

// withSession builds an engine, connects and runs fn. The engine is closed
// afterwards, which also disconnects.
func withSession(ctx context.Context, cf *connFlags, fn func(ctx context.Context, e *core.Engine) error) error {
	e, err := newEngine("cli")
	if err != nil {
		return err
	}
	defer e.Close()

	if err := cf.connect(ctx, e); err != nil {
		return err
	}
	return fn(ctx, e)
}
