package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/opex/internal/api"
)

// EnvPassword supplies the login password without a prompt.
const EnvPassword = "OPEX_PASSWORD"

func loginCmd(opts *globalOptions) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd, opts, setupOptions{console: true})
			if err != nil {
				return err
			}
			defer rt.close()

			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			resp, err := rt.client.Login(cmd.Context(), api.LoginRequest{Email: email, Password: password})
			if err != nil {
				rt.journal.Error("Login failed for %s: %v", email, err)
				if errors.Is(err, api.ErrUnauthorized) {
					return errors.New("invalid email or password")
				}
				return friendly(err)
			}
			if err := rt.sessions.Save(resp.Token, resp.User); err != nil {
				return err
			}
			rt.journal.Info("Signed in as %s", resp.User.Email)
			fprintf(cmd, "Signed in as %s (%s", resp.User.DisplayName(), resp.User.Role)
			if resp.User.Site != "" {
				fprintf(cmd, ", %s", resp.User.Site)
			}
			fprintf(cmd, ")\n")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// readPassword takes OPEX_PASSWORD, or one line from stdin.
func readPassword(cmd *cobra.Command) (string, error) {
	if value, ok := os.LookupEnv(EnvPassword); ok && value != "" {
		return value, nil
	}
	warnf(cmd, "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is required")
	}
	return password, nil
}

func logoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd, opts, setupOptions{console: true, noBackend: true})
			if err != nil {
				return err
			}
			defer rt.close()
			if err := rt.sessions.Clear(); err != nil {
				return err
			}
			rt.journal.Info("Signed out")
			fprintf(cmd, "Signed out\n")
			return nil
		},
	}
}
