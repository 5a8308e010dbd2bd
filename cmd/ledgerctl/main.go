// ledgerctl runs ledger operations for one user from the terminal, against
// the same database and sync backend as the server.
// Usage: go run ./cmd/ledgerctl --user <id> <command>
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/juju/clock"
	"github.com/spf13/cobra"

	"lg/nutrition-ledger-go-api/internal/backup"
	"lg/nutrition-ledger-go-api/internal/config"
	"lg/nutrition-ledger-go-api/internal/dayclose"
	"lg/nutrition-ledger-go-api/internal/goals"
	"lg/nutrition-ledger-go-api/internal/store"
)

var userID string

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "ledgerctl inspects, closes and backs up a user's nutrition ledger",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if userID == "" {
			return fmt.Errorf("--user is required")
		}
		return nil
	},
}

// deps are the collaborators a command works with.
type deps struct {
	store       store.Store
	backup      backup.Service
	closer      *dayclose.Closer
	targetMode  goals.Mode
	syncTimeout time.Duration
	close       func()
}

// openDeps is swapped out by tests.
var openDeps = openPostgresDeps

func openPostgresDeps(ctx context.Context) (*deps, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	pool, err := store.OpenPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	svc, err := cfg.OpenBackup(ctx)
	if err != nil {
		pool.Close()
		return nil, err
	}
	pg := store.NewPostgres(pool)
	return &deps{
		store:  pg,
		backup: svc,
		closer: dayclose.New(dayclose.Config{
			Ledgers:     pg,
			Backup:      svc,
			Clock:       clock.WallClock,
			SyncTimeout: cfg.SyncTimeout,
		}),
		targetMode:  cfg.TargetMode,
		syncTimeout: cfg.SyncTimeout,
		close:       pool.Close,
	}, nil
}

// withDeps opens the collaborators, runs fn and releases them.
func withDeps(cmd *cobra.Command, fn func(ctx context.Context, d *deps) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	d, err := openDeps(ctx)
	if err != nil {
		return err
	}
	if d.close != nil {
		defer d.close()
	}
	return fn(ctx, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "User ID to act on")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
