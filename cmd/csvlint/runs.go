package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvlint/internal/admin"
	"github.com/JonMunkholm/csvlint/internal/config"
	"github.com/JonMunkholm/csvlint/internal/store"
)

var (
	olderThan    time.Duration
	confirmReset bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Maintain the stored run history",
	Long: `Maintain the run history kept by csvlint-server in PostgreSQL.

The database is read from DATABASE_URL, or from a .env file in the current
directory.`,
}

var pruneCmd = &cobra.Command{
	Use:     "prune",
	Short:   "Delete runs older than a duration",
	Example: `  csvlint runs prune --older-than 168h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(cmd.Context(), func(ctx context.Context, r *admin.ResetHistory) error {
			n, err := r.Prune(ctx, olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d runs\n", n)
			return nil
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every stored run",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirmReset {
			return errors.New("reset deletes all run history; pass --yes to confirm")
		}
		return withHistory(cmd.Context(), func(ctx context.Context, r *admin.ResetHistory) error {
			if err := r.ResetAll(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "run history reset")
			return nil
		})
	},
}

func init() {
	pruneCmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "delete runs started before now minus this duration")
	resetCmd.Flags().BoolVar(&confirmReset, "yes", false, "confirm deleting all runs")

	runsCmd.AddCommand(pruneCmd, resetCmd)
	rootCmd.AddCommand(runsCmd)
}

func withHistory(ctx context.Context, fn func(context.Context, *admin.ResetHistory) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, &admin.ResetHistory{DB: store.New(pool), Logger: slog.Default()})
}
