package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pushbricks/pushbricks/installation"
)

// PutOptions holds flags for installation put.
type PutOptions struct {
	ID          string
	Platform    string
	PushChannel string
	Tags        []string
	UserID      string
}

// NewInstallationCommand groups the installation subcommands.
func NewInstallationCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "installation",
		Aliases: []string{"inst"},
		Short:   "Create, read and delete device installations",
	}

	cmd.AddCommand(
		newInstallationPutCommand(root),
		newInstallationGetCommand(root),
		newInstallationDeleteCommand(root),
	)
	return cmd
}

func newInstallationPutCommand(root *rootOptions) *cobra.Command {
	opts := &PutOptions{}

	cmd := &cobra.Command{
		Use:   "put",
		Short: "Create or replace an installation",
		Example: `  # Register an FCM device with two tags
  nhctl installation put --platform fcmv1 --channel <token> --tag news --tag sports`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			inst := installation.NewInstallation(opts.Platform, opts.PushChannel, opts.Tags...)
			if opts.ID != "" {
				inst.InstallationID = opts.ID
			}
			inst.UserID = opts.UserID

			return withSession(root, cmd.ErrOrStderr(), func(s *session) error {
				client, err := s.installations()
				if err != nil {
					return err
				}
				if err := client.Upsert(cmd.Context(), inst); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), inst.InstallationID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "Installation ID (generated when empty)")
	cmd.Flags().StringVarP(&opts.Platform, "platform", "p", "", "Platform: fcmv1, apns, adm or baidu")
	cmd.Flags().StringVar(&opts.PushChannel, "channel", "", "Platform push channel (device token)")
	cmd.Flags().StringArrayVarP(&opts.Tags, "tag", "t", nil, "Tag to attach (repeatable)")
	cmd.Flags().StringVar(&opts.UserID, "user", "", "User ID to associate")
	_ = cmd.MarkFlagRequired("platform")
	_ = cmd.MarkFlagRequired("channel")

	return cmd
}

func newInstallationGetCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <installation-id>",
		Short: "Print an installation as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(root, cmd.ErrOrStderr(), func(s *session) error {
				client, err := s.installations()
				if err != nil {
					return err
				}
				inst, err := client.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(inst)
			})
		},
	}
}

func newInstallationDeleteCommand(root *rootOptions) *cobra.Command {
	var mustExist bool

	cmd := &cobra.Command{
		Use:   "delete <installation-id>",
		Short: "Delete an installation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(root, cmd.ErrOrStderr(), func(s *session) error {
				client, err := s.installations()
				if err != nil {
					return err
				}
				if mustExist {
					if _, err := client.Get(cmd.Context(), args[0]); err != nil {
						if errors.Is(err, installation.ErrNotFound) {
							return fmt.Errorf("nothing to delete: %w", err)
						}
						return err
					}
				}
				if err := client.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&mustExist, "must-exist", false, "Fail when the installation is unknown")
	return cmd
}
