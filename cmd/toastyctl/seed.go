package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/toastysunday/api/internal/auth"
	"github.com/toastysunday/api/internal/database"
	"golang.org/x/crypto/bcrypt"
)

// accountSeeder is satisfied by *database.Queries.
type accountSeeder interface {
	UpsertAccountPassword(ctx context.Context, arg database.UpsertAccountPasswordParams) (database.Account, error)
}

func seedAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-account",
		Short: "Create an account or reset its password",
		Long: `Create an account or reset its password.

Admin rights come from ADMIN_USERS; seed the account here and list its
username there to bootstrap the first admin.

Examples:
  toastyctl seed-account --username root --password 'S3cret!'
  SEED_USERNAME=root SEED_PASSWORD='S3cret!' toastyctl seed-account`,
		Args: cobra.NoArgs,
		RunE: runSeedAccount,
	}
	cmd.Flags().String("username", "", "account username (default $SEED_USERNAME)")
	cmd.Flags().String("password", "", "account password (default $SEED_PASSWORD)")
	return cmd
}

func runSeedAccount(cmd *cobra.Command, args []string) error {
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")

	// Fall back to environment variables
	if username == "" {
		username = os.Getenv("SEED_USERNAME")
	}
	if password == "" {
		password = os.Getenv("SEED_PASSWORD")
	}
	if username == "" || password == "" {
		return errors.New("username and password are required")
	}
	if auth.Reserved(username) {
		return fmt.Errorf("username %q is reserved", username)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if err := seedAccount(ctx, database.New(pool), username, password); err != nil {
		return err
	}
	if !cfg.Admins.Contains(username) {
		logrus.WithField("username", username).Warn("account is not listed in ADMIN_USERS")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "account %q ready\n", username)
	return nil
}

func seedAccount(ctx context.Context, store accountSeeder, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if _, err := store.UpsertAccountPassword(ctx, database.UpsertAccountPasswordParams{
		Username:     username,
		PasswordHash: string(hash),
	}); err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}
