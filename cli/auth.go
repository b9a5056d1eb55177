package cli

import (
	"bufio"
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/warp/clinic-core/auth"
)

// AuthOptions holds flags for the auth commands.
type AuthOptions struct {
	*RootOptions
	Username string
}

func NewAuthCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuthOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Staff account checks",
	}

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check a username and password",
		Long: `Check a username and password against the users table.

The password is read from the first line of stdin so it never appears in
the process list or shell history.

Example:
  echo "$PASSWORD" | clinic auth verify --username admin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthVerify(opts, cmd)
		},
	}
	verify.Flags().StringVar(&opts.Username, "username", "", "account username (required)")
	_ = verify.MarkFlagRequired("username")

	cmd.AddCommand(verify)
	return cmd
}

type verifyOutput struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	FullName string `json:"full_name"`
}

func runAuthVerify(opts *AuthOptions, cmd *cobra.Command) error {
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return NewExitError(ExitCommandError, "password expected on stdin")
	}
	password := strings.TrimRight(line, "\r\n")

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	svc := auth.NewService(st, auth.Config{BcryptCost: opts.cfg.BcryptCost, Now: opts.now, Logger: opts.logger})
	sess, err := svc.Login(cmd.Context(), opts.Username, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrInactiveAccount) {
			return WrapExitError(ExitFailure, "login rejected", err)
		}
		return WrapExitError(ExitCommandError, "login failed", err)
	}
	defer svc.Logout(sess.ID)

	u := sess.User
	return writeJSON(cmd, verifyOutput{UserID: u.ID, Username: u.Username, Role: u.Role.String(), FullName: u.FullName})
}
