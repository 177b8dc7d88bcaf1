package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"immun/internal/client/session"
)

func newLoginCmd(c *cli) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reader := bufio.NewReader(cmd.InOrStdin())
			if username == "" {
				printf(cmd.OutOrStdout(), "Username: ")
				line, err := reader.ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read username: %w", err)
				}
				username = strings.TrimSpace(line)
			}
			password, err := promptPassword(cmd, reader, "Password: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}

			resp, err := c.apiClient(nil).Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			sess := session.Session{AccessToken: resp.AccessToken, User: resp.User, CreatedAt: c.now().UTC()}
			if err := c.store().Save(sess); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			printf(cmd.OutOrStdout(), "Logged in as %s\n", resp.User.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Account username")
	return cmd
}

// promptPassword reads without echo from a terminal and falls back to a
// plain line otherwise, so passwords can be piped in.
func promptPassword(cmd *cobra.Command, reader *bufio.Reader, prompt string) (string, error) {
	printf(cmd.OutOrStdout(), "%s", prompt)
	if f, ok := stdinFile(cmd); ok && term.IsTerminal(int(f.Fd())) {
		pass, err := term.ReadPassword(int(f.Fd()))
		printf(cmd.OutOrStdout(), "\n")
		return string(pass), err
	}
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := c.store()
			sess, err := store.Load()
			if errors.Is(err, session.ErrNoSession) {
				printf(cmd.OutOrStdout(), "Not logged in\n")
				return nil
			}
			if err != nil {
				// unreadable session: remove it anyway
				c.logger.Warn("load session", "error", err)
				return store.Clear()
			}
			session.NewContext(sess, store, c.logger).Logout()
			printf(cmd.OutOrStdout(), "Logged out\n")
			return nil
		},
	}
}

func newWhoamiCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			auth, err := c.authContext()
			if err != nil {
				return err
			}
			user := auth.User()
			out := cmd.OutOrStdout()
			printf(out, "Username: %s\n", user.Username)
			if user.Email != "" {
				printf(out, "Email:    %s\n", user.Email)
			}
			role := "user"
			if auth.IsAdmin() {
				role = "admin"
			}
			printf(out, "Role:     %s\n", role)
			if exp, ok := auth.ExpiresAt(); ok {
				printf(out, "Expires:  %s\n", exp.Local().Format("2006-01-02 15:04:05 MST"))
			}
			return nil
		},
	}
}
