package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ductline/ductline/internal/platform/db"
	"github.com/ductline/ductline/internal/rbac"
	"github.com/ductline/ductline/internal/shared"
	"github.com/ductline/ductline/internal/users"
)

var (
	adminEmail    string
	adminName     string
	adminPassword string
)

func init() {
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "admin email address")
	createAdminCmd.Flags().StringVar(&adminName, "name", "Administrator", "display name")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "initial password")
	_ = createAdminCmd.MarkFlagRequired("email")
	_ = createAdminCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(createAdminCmd)
}

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Provision an active admin account",
	Long: `Provision an active admin account without going through registration approval.

Examples:
  ductlinectl create-admin --email ops@example.com --password 'changeme123'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			return err
		}
		defer pool.Close()

		svc := users.NewService(users.NewRepository(pool), rbac.Authorizer{}, shared.NewAuditLogger(pool), logger)
		id, err := svc.Provision(ctx, users.CreateInput{
			Email:    adminEmail,
			Password: adminPassword,
			Name:     adminName,
			Role:     rbac.RoleAdmin,
			Status:   rbac.StatusActive,
		})
		if errors.Is(err, shared.ErrConflict) {
			return fmt.Errorf("an account for %s already exists", adminEmail)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (id %d)\n", adminEmail, id)
		return nil
	},
}
