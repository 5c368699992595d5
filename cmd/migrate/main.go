package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sparehub.org/internal/auth"
	"sparehub.org/internal/config"
	"sparehub.org/internal/migrate"
	"sparehub.org/internal/obs"
	"sparehub.org/internal/store/pg"
	"sparehub.org/ops/migrations"
)

type options struct {
	dsn     string
	timeout time.Duration
}

func main() {
	_ = config.LoadEnvFiles(".env")
	opts := &options{}

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply Sparehub schema migrations and seeds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", os.Getenv("SPAREHUB_DATABASE_DSN"), "PostgreSQL DSN")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall command timeout")

	root.AddCommand(upCmd(opts), downCmd(opts), statusCmd(opts), seedCmd(opts), assignRoleCmd(opts))

	if err := root.Execute(); err != nil {
		obs.Logger().WithError(err).Fatal("migrate failed")
	}
}

// withStore opens the database and runs fn under the command timeout.
func withStore(cmd *cobra.Command, opts *options, fn func(ctx context.Context, st *pg.Store) error) error {
	if opts.dsn == "" {
		return errors.New("missing DSN: provide via --dsn or SPAREHUB_DATABASE_DSN")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	st, err := pg.Open(opts.dsn, pg.PoolSettings{MaxOpenConns: 2})
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()
	return fn(ctx, st)
}

func newManager(st *pg.Store) *migrate.Manager {
	return migrate.NewManager(st.DB(), migrations.FS, migrations.Dir, migrations.SeedsDir)
}

func upCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, opts, func(ctx context.Context, st *pg.Store) error {
				applied, err := newManager(st).Up(ctx)
				for _, name := range applied {
					obs.Logger().WithField("migration", name).Info("applied")
				}
				return err
			})
		},
	}
}

func downCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, opts, func(ctx context.Context, st *pg.Store) error {
				name, err := newManager(st).Down(ctx)
				if err != nil {
					return err
				}
				obs.Logger().WithField("migration", name).Info("rolled back")
				return nil
			})
		},
	}
}

func statusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List applied migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, opts, func(ctx context.Context, st *pg.Store) error {
				history, err := newManager(st).Status(ctx)
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

func seedCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create builtin roles and permissions, then apply seed files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, opts, func(ctx context.Context, st *pg.Store) error {
				rbac, err := auth.NewRBACService(st)
				if err != nil {
					return err
				}
				if err := rbac.EnsureBuiltins(ctx); err != nil {
					return fmt.Errorf("builtin roles: %w", err)
				}
				applied, err := newManager(st).Seed(ctx)
				for _, name := range applied {
					obs.Logger().WithField("seed", name).Info("applied")
				}
				return err
			})
		},
	}
}

// assignRoleCmd bootstraps the first administrator; the HTTP API has no way to change a user's role.
func assignRoleCmd(opts *options) *cobra.Command {
	var email, role string
	cmd := &cobra.Command{
		Use:   "assign-role",
		Short: "Move a registered user to another role",
		RunE: func(cmd *cobra.Command, _ []string) error {
			email = strings.TrimSpace(email)
			if email == "" {
				return errors.New("--email is required")
			}
			return withStore(cmd, opts, func(ctx context.Context, st *pg.Store) error {
				user, err := st.UserByEmail(ctx, email)
				if err != nil {
					return fmt.Errorf("user %s: %w", email, err)
				}
				r, err := st.RoleByName(ctx, role)
				if err != nil {
					return fmt.Errorf("role %s: %w", role, err)
				}
				if err := st.AssignRole(ctx, user.ID, r.ID); err != nil {
					return err
				}
				obs.Logger().WithFields(logrus.Fields{"user_id": user.ID, "role": r.Name}).Info("role assigned")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email of the registered user")
	cmd.Flags().StringVar(&role, "role", auth.RoleAdmin, "role name")
	return cmd
}
