package cli

import (
	"github.com/spf13/cobra"
)

// UserOptions holds flags for user subcommands.
type UserOptions struct {
	*RootOptions
	Email        string
	PasswordHash string
	Name         string
}

// NewUserCommand creates the user command group.
func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user records",
	}
	cmd.AddCommand(newUserCreateCommand(rootOpts))
	return cmd
}

func newUserCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UserOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		Long: `Create a user object from its email, password hash and display name.
The password hash is stored as given; hashing happens before the CLI.

Example:
  intelgraph user create --email alice@example.com --password-hash 'pbkdf2:...' --name Alice`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserCreate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "user email")
	cmd.Flags().StringVar(&opts.PasswordHash, "password-hash", "", "pre-hashed password")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password-hash")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runUserCreate(cmd *cobra.Command, opts *UserOptions) error {
	ctx := cmd.Context()
	f := newFormatter(cmd, opts.RootOptions)

	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	user, err := app.Registry.NewUser(ctx, opts.Email, opts.PasswordHash, opts.Name)
	if err != nil {
		return WrapExitError(ExitFailure, "creating user", err)
	}
	return f.Success(newRecordSummary(user))
}
