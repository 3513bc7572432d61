package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/repolens/repolens"
	"github.com/repolens/repolens/domain/repo"
	"github.com/repolens/repolens/internal/log"
)

func indexCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "index <repository-url>",
		Short: "Index a GitHub repository and wait for completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(envFile, args[0])
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")

	return cmd
}

func runIndex(envFile, url string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	logger := log.NewLogger(cfg)

	client, err := repolens.New(buildClientOptions(cfg, logger)...)
	if err != nil {
		return fmt.Errorf("create repolens client: %w", err)
	}
	defer func() { _ = client.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec, started, err := client.Indexer.Request(ctx, url)
	if err != nil {
		return fmt.Errorf("request indexing: %w", err)
	}

	if !started && rec.Status() == repo.StatusCompleted {
		fmt.Printf("%s is already indexed (%d files)\n", rec.URL(), rec.IndexedFiles())
		return nil
	}

	fmt.Printf("indexing %s\n", rec.URL())
	return waitForCompletion(ctx, client, rec.ID())
}

// waitForCompletion polls the progress row until the run reaches a
// terminal state.
func waitForCompletion(ctx context.Context, client *repolens.Client, repoID int64) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastPercent := -1
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "interrupted, indexing continues in the database state it reached")
			return ctx.Err()
		case <-ticker.C:
			row, err := client.Repositories.Status(ctx, repoID)
			if err != nil {
				return fmt.Errorf("poll status: %w", err)
			}

			if row.Percent() != lastPercent {
				lastPercent = row.Percent()
				fmt.Printf("  %3d%%  %s\n", row.Percent(), row.CurrentStep())
			}

			switch row.Status() {
			case repo.StatusCompleted:
				fmt.Printf("done: %d of %d files indexed\n", row.IndexedFiles(), row.TotalFiles())
				return nil
			case repo.StatusFailed:
				return fmt.Errorf("indexing failed: %s", row.ErrorMessage())
			}
		}
	}
}
