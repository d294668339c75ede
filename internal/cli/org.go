package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calyptra/intelgraph/internal/record"
)

// OrgOptions holds flags for org subcommands.
type OrgOptions struct {
	*RootOptions
	Admins  []string
	Members []string
}

// NewOrgCommand creates the org command group.
func NewOrgCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Manage org records and their ACLs",
	}
	cmd.AddCommand(newOrgCreateCommand(rootOpts))
	cmd.AddCommand(newOrgGrantCommand(rootOpts))
	cmd.AddCommand(newOrgRevokeCommand(rootOpts))
	return cmd
}

func newOrgCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrgOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an org",
		Long: `Create an org with the given admins and members. The org's ACL is
seeded from admins and members together.

Example:
  intelgraph org create acme --admins root@example.com --members bob@example.com`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrgCreate(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringSliceVar(&opts.Admins, "admins", nil, "admin users (hash or email)")
	cmd.Flags().StringSliceVar(&opts.Members, "members", nil, "member users (hash or email)")
	cmd.MarkFlagRequired("admins")

	return cmd
}

func runOrgCreate(cmd *cobra.Command, opts *OrgOptions, name string) error {
	ctx := cmd.Context()
	f := newFormatter(cmd, opts.RootOptions)

	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	admins, err := resolveUsers(ctx, app, opts.Admins)
	if err != nil {
		return err
	}
	members, err := resolveUsers(ctx, app, opts.Members)
	if err != nil {
		return err
	}

	org, err := app.Registry.NewOrg(ctx, name, admins, members)
	if err != nil {
		return WrapExitError(ExitFailure, "creating org", err)
	}
	return f.Success(newRecordSummary(org))
}

func newOrgGrantCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "grant <org> <user>",
		Short:         "Add a user to an org's ACL",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrgACL(cmd, rootOpts, args[0], args[1], true)
		},
	}
	return cmd
}

func newOrgRevokeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "revoke <org> <user>",
		Short:         "Remove a user from an org's ACL",
		Long:          "Remove a user from an org's ACL. Takes effect on the next query; nothing caches the old answer.",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrgACL(cmd, rootOpts, args[0], args[1], false)
		},
	}
	return cmd
}

func runOrgACL(cmd *cobra.Command, opts *RootOptions, orgKey, userKey string, grant bool) error {
	ctx := cmd.Context()
	f := newFormatter(cmd, opts)

	app, err := openApp(opts)
	if err != nil {
		return err
	}
	defer app.Close()

	org, err := app.Directory.FindOrg(ctx, orgKey)
	if err != nil {
		return WrapExitError(ExitFailure, "resolving org", err)
	}
	if org == nil {
		return NewExitError(ExitFailure, fmt.Sprintf("no org for %q", orgKey))
	}
	user, err := app.Directory.FindUser(ctx, userKey)
	if err != nil {
		return WrapExitError(ExitFailure, "resolving user", err)
	}
	if user == nil {
		return NewExitError(ExitFailure, fmt.Sprintf("no user for %q", userKey))
	}

	if grant {
		err = app.Registry.Grant(ctx, org, user)
	} else {
		err = app.Registry.Revoke(ctx, org, user)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "updating ACL", err)
	}
	return f.Success(fmt.Sprintf("org %s acl now has %d principal(s)", org.Hash, len(org.ACL)))
}

// resolveUsers fetches user records for a list of hashes or emails.
func resolveUsers(ctx context.Context, app *App, keys []string) ([]*record.Record, error) {
	users := make([]*record.Record, 0, len(keys))
	for _, key := range keys {
		user, err := app.Directory.FindUser(ctx, key)
		if err != nil {
			return nil, WrapExitError(ExitFailure, "resolving user", err)
		}
		if user == nil {
			return nil, NewExitError(ExitFailure, fmt.Sprintf("no user for %q", key))
		}
		users = append(users, user)
	}
	return users, nil
}
