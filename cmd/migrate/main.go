package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"genaccess.org/internal/bootstrap"
	"genaccess.org/internal/migrate"
	"genaccess.org/internal/store/pg"
)

var (
	dsn     string
	timeout time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the genaccess PostgreSQL schema",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("GENACCESS_PG_DSN"), "PostgreSQL DSN")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall command timeout")

	rootCmd.AddCommand(upCmd(), downCmd(), statusCmd(), seedCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func withStore(cmd *cobra.Command, fn func(ctx context.Context, st *pg.Store) error) error {
	if dsn == "" {
		return fmt.Errorf("missing DSN: provide via --dsn or GENACCESS_PG_DSN")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	st, err := pg.Open(dsn)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, st *pg.Store) error {
				applied, err := migrate.NewManager(st.DB()).Up(ctx)
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to apply")
				}
				for _, name := range applied {
					fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
				}
				return nil
			})
		},
	}
}

func downCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, st *pg.Store) error {
				name, err := migrate.NewManager(st.DB()).Down(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back", name)
				return nil
			})
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, st *pg.Store) error {
				history, err := migrate.NewManager(st.DB()).Status(ctx)
				if err != nil {
					return err
				}
				for _, item := range history {
					fmt.Fprintln(cmd.OutOrStdout(), item)
				}
				return nil
			})
		},
	}
}

func seedCmd() *cobra.Command {
	var admin bootstrap.Admin
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default client, permission catalog, built-in roles and admin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, st *pg.Store) error {
				res, err := bootstrap.Seed(ctx, st, admin)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "client %s: %d permissions, %d roles created, admin created: %t\n",
					res.Client.Name, res.Permissions, res.Roles, res.AdminUser)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&admin.Username, "admin-user", "admin", "Super admin username")
	cmd.Flags().StringVar(&admin.Email, "admin-email", "admin@genaccess.local", "Super admin email")
	cmd.Flags().StringVar(&admin.Password, "admin-password", os.Getenv("GENACCESS_BOOTSTRAP_ADMIN_PASSWORD"), "Super admin password; empty skips the admin")
	cmd.Flags().StringVar(&admin.FirstName, "admin-first-name", "System", "Super admin first name")
	cmd.Flags().StringVar(&admin.LastName, "admin-last-name", "Administrator", "Super admin last name")
	return cmd
}
