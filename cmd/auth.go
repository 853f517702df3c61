package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/issueboard/internal/identity"
	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/output"
)

var (
	authEmail        string
	authPasswordFile string
)

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and log in",
	RunE: func(cmd *cobra.Command, args []string) error {
		return signupRun()
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and save the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return loginRun()
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return logoutRun()
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return whoamiRun()
	},
}

func init() {
	for _, c := range []*cobra.Command{signupCmd, loginCmd} {
		c.Flags().StringVar(&authEmail, "email", "", "Account email (required)")
		c.Flags().StringVar(&authPasswordFile, "password-file", "", "Read the password from a file instead of prompting")
		_ = c.MarkFlagRequired("email")
	}

	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}

// savedSession is the on-disk form of a CLI login.
type savedSession struct {
	Token string `yaml:"token"`
	UID   string `yaml:"uid"`
	Email string `yaml:"email"`
}

func sessionPath() string {
	return filepath.Join(viper.GetString("state_dir"), "session.yaml")
}

func saveSession(sess *identity.Session) error {
	data, err := yaml.Marshal(savedSession{Token: sess.Token, UID: sess.Principal.UID, Email: sess.Principal.Email})
	if err != nil {
		return err
	}
	path := sessionPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func loadSession() (*savedSession, error) {
	data, err := os.ReadFile(sessionPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, identity.ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	var s savedSession
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	if s.Token == "" {
		return nil, identity.ErrUnauthenticated
	}
	return &s, nil
}

// currentPrincipal resolves the saved session against the store.
func currentPrincipal(ctx context.Context) (models.Principal, error) {
	sess, err := loadSession()
	if err != nil {
		return models.Principal{}, loginHint(err)
	}
	id, err := getIdentity()
	if err != nil {
		return models.Principal{}, err
	}
	p, err := id.Resolve(ctx, sess.Token)
	if err != nil {
		return models.Principal{}, loginHint(err)
	}
	return p, nil
}

func loginHint(err error) error {
	if errors.Is(err, identity.ErrUnauthenticated) {
		return fmt.Errorf("%w (run 'board login' or 'board signup')", err)
	}
	return err
}

// readPassword reads from --password-file, or prompts on the terminal with
// echo disabled.
func readPassword(prompt string) (string, error) {
	if authPasswordFile != "" {
		data, err := os.ReadFile(authPasswordFile)
		if err != nil {
			return "", fmt.Errorf("read password file: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal available for password prompt (use --password-file)")
	}
	fmt.Fprint(ui.ErrOut, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(ui.ErrOut)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

func signupRun() error {
	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}
	confirm := password
	if authPasswordFile == "" {
		if confirm, err = readPassword("Confirm password: "); err != nil {
			return err
		}
	}

	if dryRun {
		ui.DryRunMsg("Would create account %s", authEmail)
		return nil
	}

	id, err := getIdentity()
	if err != nil {
		return err
	}
	sess, err := id.SignUp(context.Background(), authEmail, password, confirm)
	if err != nil {
		return err
	}
	if err := saveSession(sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	ui.Success("Signed up as %s", output.Cyan(sess.Principal.Email))
	return nil
}

func loginRun() error {
	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}

	id, err := getIdentity()
	if err != nil {
		return err
	}
	sess, err := id.Login(context.Background(), authEmail, password)
	if err != nil {
		return err
	}
	if err := saveSession(sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	ui.Success("Logged in as %s", output.Cyan(sess.Principal.Email))
	return nil
}

func logoutRun() error {
	sess, err := loadSession()
	if errors.Is(err, identity.ErrUnauthenticated) {
		ui.Info("Not logged in.")
		return nil
	}
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would log out %s", sess.Email)
		return nil
	}

	id, err := getIdentity()
	if err != nil {
		return err
	}
	if err := id.Logout(context.Background(), sess.Token); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if err := os.Remove(sessionPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}

	ui.Success("Logged out %s", sess.Email)
	return nil
}

func whoamiRun() error {
	p, err := currentPrincipal(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(p.Email), p.UID)
	return nil
}
