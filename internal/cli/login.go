package cli

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"github.com/tansive/crmctl/internal/auth"
	"github.com/tansive/crmctl/internal/session"
)

func newLoginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the CRM server",
		Long: `Sign in to obtain a session token. The token and your profile are stored in
the session file and sent with every later request until you log out or the
server rejects the token.

Missing credentials are prompted for; the password is read without echo.

Example:
  crmctl login -u alice
  crmctl login -u alice -p secret`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			p := newPrompter(cmd)
			if username == "" {
				if username, err = p.line("Username: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = p.password("Password: "); err != nil {
					return err
				}
			}

			if !a.auth.Login(cmd.Context(), auth.Credentials{Username: username, Password: password}) {
				return ErrAlreadyHandled
			}

			expiry, hasExpiry := session.TokenExpiry(a.auth.Token())
			if jsonOutput {
				kv := map[string]any{
					"result":   1,
					"status":   "success",
					"username": a.auth.User().Username,
				}
				if hasExpiry {
					kv["expires_at"] = expiry.Format(time.RFC3339)
				}
				return printJSON(a.out, kv)
			}
			if hasExpiry {
				fmt.Fprintf(a.out, "Token expires at: %s\n", expiry.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted for when omitted)")
	return cmd
}

func newRegisterCmd() *cobra.Command {
	var req auth.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long: `Create an account on the CRM server. Registration does not sign you in;
run "crmctl login" afterwards.

Example:
  crmctl register -u alice --email alice@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			p := newPrompter(cmd)
			if req.Username == "" {
				if req.Username, err = p.line("Username: "); err != nil {
					return err
				}
			}
			if req.Email == "" {
				if req.Email, err = p.line("Email: "); err != nil {
					return err
				}
			}
			if req.Password == "" {
				if req.Password, err = p.password("Password: "); err != nil {
					return err
				}
				confirm, err := p.password("Confirm password: ")
				if err != nil {
					return err
				}
				if confirm != req.Password {
					return fmt.Errorf("passwords do not match")
				}
			}

			if !a.auth.Register(cmd.Context(), req) {
				return ErrAlreadyHandled
			}
			if jsonOutput {
				return printJSON(a.out, map[string]any{"result": 1, "username": req.Username})
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Username, "username", "u", "", "Username")
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "Password (prompted for when omitted)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			a.auth.Logout()
			if jsonOutput {
				return printJSON(a.out, map[string]int{"result": 1})
			}
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Long: `Show the signed-in user. The profile is refreshed from the server first;
if that fails the stored profile is shown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			<-a.auth.Start(cmd.Context())
			if err := a.requireLogin(); err != nil {
				return err
			}
			u := a.auth.User()
			if u == nil {
				return fmt.Errorf("no user profile stored")
			}
			if jsonOutput {
				return printResult(a.out, u)
			}
			fmt.Fprintf(a.out, "Username: %s\n", u.Username)
			if u.Email != "" {
				fmt.Fprintf(a.out, "Email: %s\n", u.Email)
			}
			for _, k := range slices.Sorted(maps.Keys(u.Extra)) {
				fmt.Fprintf(a.out, "%s: %v\n", k, u.Extra[k])
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the configured server and the local session",
		Long: `Show the configured server and the local session state. No request is
made; use "crmctl whoami" to check the session against the server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			var username string
			if u := a.auth.User(); u != nil {
				username = u.Username
			}
			expiry, hasExpiry := session.TokenExpiry(a.auth.Token())

			if jsonOutput {
				kv := map[string]any{
					"server":        a.cfg.ServerURL,
					"config_file":   configFile,
					"session_file":  a.store.Path(),
					"authenticated": a.auth.IsAuthenticated(),
					"username":      username,
				}
				if hasExpiry {
					kv["expires_at"] = expiry.Format(time.RFC3339)
				}
				return printResult(a.out, kv)
			}

			fmt.Fprintf(a.out, "crmctl %s\n", getCLIVersion())
			fmt.Fprintf(a.out, "Server: %s\n", a.cfg.ServerURL)
			fmt.Fprintf(a.out, "Session file: %s\n", a.store.Path())
			if !a.auth.IsAuthenticated() {
				warnLabel.Fprintln(a.out, "Not logged in")
				return nil
			}
			okLabel.Fprintf(a.out, "Logged in as %s\n", username)
			if hasExpiry {
				if time.Now().After(expiry) {
					warnLabel.Fprintf(a.out, "Token expired at %s\n", expiry.Local().Format(time.RFC3339))
				} else {
					fmt.Fprintf(a.out, "Token expires at %s\n", expiry.Local().Format(time.RFC3339))
				}
			}
			return nil
		},
	}
}
