package commands

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storefront/internal/app"
	"storefront/internal/session"
	"storefront/pkg/domain"
)

// prompter reads answers line by line from the command's input.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.ErrOrStderr()}
}

func (p *prompter) ask(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

// valueOr returns v, or prompts for it when empty.
func (p *prompter) valueOr(v, label string) (string, error) {
	if v != "" {
		return v, nil
	}
	return p.ask(label)
}

func newRegisterCommand(rt *runtime) *cobra.Command {
	var (
		req  session.RegisterRequest
		role string
		code string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and verify it with the emailed code",
		Long: fmt.Sprintf(`Create an account. Passwords need at least %d characters.
The verification code is read from --code or prompted for, since the
pending registration only lives for this invocation.`, session.MinPasswordLength),
		Args: cobra.NoArgs,
		RunE: rt.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			p := newPrompter(cmd)
			var err error
			if req.FullName, err = p.valueOr(req.FullName, "Full name"); err != nil {
				return err
			}
			if req.Email, err = p.valueOr(req.Email, "Email"); err != nil {
				return err
			}
			if req.PhoneNumber, err = p.valueOr(req.PhoneNumber, "Phone number"); err != nil {
				return err
			}
			if req.Password, err = p.valueOr(req.Password, "Password"); err != nil {
				return err
			}
			if req.ConfirmPassword, err = p.valueOr(req.ConfirmPassword, "Confirm password"); err != nil {
				return err
			}
			req.Role = domain.UserRole(role)

			ctx := cmd.Context()
			if err := a.Session().Register(ctx, req); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "A verification code has been sent to your email.")
			if code, err = p.valueOr(code, "Verification code"); err != nil {
				return err
			}
			if err := a.Session().VerifyRegistration(ctx, code); err != nil {
				return err
			}
			return printState(cmd.OutOrStdout(), a.Session().State())
		}),
	}

	cmd.Flags().StringVar(&req.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&req.Email, "email", "", "email address")
	cmd.Flags().StringVar(&req.PhoneNumber, "phone", "", "phone number")
	cmd.Flags().StringVar(&req.Password, "password", "", "password")
	cmd.Flags().StringVar(&req.ConfirmPassword, "confirm-password", "", "password confirmation")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleUser), "account role (user or admin)")
	cmd.Flags().StringVar(&code, "code", "", "verification code")
	return cmd
}

func newLoginCommand(rt *runtime) *cobra.Command {
	var email, password, code string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and verify with the emailed code",
		Args:  cobra.NoArgs,
		RunE: rt.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			p := newPrompter(cmd)
			var err error
			if email, err = p.valueOr(email, "Email"); err != nil {
				return err
			}
			if password, err = p.valueOr(password, "Password"); err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := a.Session().Login(ctx, email, password); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "A verification code has been sent to your email.")
			if code, err = p.valueOr(code, "Verification code"); err != nil {
				return err
			}
			if err := a.Session().VerifyLogin(ctx, code); err != nil {
				return err
			}
			return printState(cmd.OutOrStdout(), a.Session().State())
		}),
	}

	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&code, "code", "", "verification code")
	return cmd
}

func newLogoutCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored token",
		Args:  cobra.NoArgs,
		RunE: rt.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			if err := a.Session().Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		}),
	}
}

func newWhoamiCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the restored session",
		Args:  cobra.NoArgs,
		RunE: rt.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			return printState(cmd.OutOrStdout(), a.Session().State())
		}),
	}
}

type stateView struct {
	Status    string         `json:"status"`
	Verified  bool           `json:"verified"`
	User      *domain.User   `json:"user,omitempty"`
	Wallet    *domain.Wallet `json:"wallet,omitempty"`
	ExpiresAt string         `json:"expiresAt,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// printState never prints the token.
func printState(w io.Writer, st session.State) error {
	view := stateView{
		Status:   st.Phase.String(),
		Verified: st.IsVerified,
		User:     st.User,
		Wallet:   st.Wallet,
		Error:    st.Error,
	}
	if !st.ExpiresAt.IsZero() {
		view.ExpiresAt = st.ExpiresAt.UTC().Format(time.RFC3339)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}
