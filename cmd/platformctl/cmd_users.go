package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"training-platform/internal/models"
	"training-platform/internal/service"
)

func newCreateUserCmd(opts *rootOptions) *cobra.Command {
	var (
		input service.NewUser
		role  string
		email string
	)
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a platform account, e.g. the first admin",
		Long: `Create a platform account without an authenticated admin.
The password is read from --password or the PLATFORM_USER_PASSWORD environment variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if input.Password == "" {
				input.Password = os.Getenv("PLATFORM_USER_PASSWORD")
			}
			r, err := models.ParseRole(role)
			if err != nil {
				return err
			}
			input.Role = r
			if email != "" {
				input.Email = &email
			}

			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.Auth.CreateUser(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %q (id %d, role %s)\n", user.Username, user.ID, user.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&input.Username, "username", "", "login name")
	cmd.Flags().StringVar(&input.Password, "password", "", "password (prefer PLATFORM_USER_PASSWORD)")
	cmd.Flags().StringVar(&input.FullName, "full-name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "contact email")
	cmd.Flags().StringVar(&role, "role", string(models.RoleAdmin), "viewer, developer, qa_analyst, qa_lead or admin")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("full-name")
	return cmd
}
