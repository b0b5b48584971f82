package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gitlab.com/bboehmke/tenant-backup/internal/archive"
	"gitlab.com/bboehmke/tenant-backup/internal/backup"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "tenant-backup [artifact]",
		Short: "Back up tables and storage buckets into a dated archive folder",
		Long: `Exports the configured tables as JSON and every object of the configured
buckets into a new folder of the remote archive. An optional file (e.g. a
pg_dump created by the scheduler) is uploaded into the same folder.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// ensure environment variables are loaded
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				slog.Warn("failed to load .env file", "error", err)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			artifacts, err := readArtifacts(args)
			if err != nil {
				return err
			}
			return runBackup(cmd, artifacts)
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "local <output-dir>",
			Short: "Copy the storage buckets into <output-dir>/storage",
			Long: `Copies every object of the configured buckets to
<output-dir>/storage/<bucket>/<path>. Object paths are kept, tables are not
exported and no database connection is needed.`,
			Args: cobra.ExactArgs(1),
			RunE: runLocal,
		},
		&cobra.Command{
			Use:   "schedule",
			Short: "Run backups periodically on BACKUP_SCHEDULE",
			Args:  cobra.NoArgs,
			RunE:  runSchedule,
		},
		&cobra.Command{
			Use:   "healthcheck",
			Short: "Check if the scheduler is running",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				var housekeeper Housekeeper
				if err := housekeeper.Healthcheck(); err != nil {
					return fmt.Errorf("check failed: %w", err)
				}
				return nil
			},
		},
	)
	return root
}

func runBackup(cmd *cobra.Command, artifacts []backup.Artifact) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var housekeeper Housekeeper
	if err := housekeeper.LoadConfig(ModeDrive); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	archiveClient, err := housekeeper.NewDriveArchive(ctx)
	if err != nil {
		return err
	}
	if err := housekeeper.Prepare(ctx, archiveClient, housekeeper.config.Archive.RootFolderID); err != nil {
		return err
	}

	result, err := housekeeper.Backup(ctx, artifacts...)
	if err != nil {
		// an interrupted backup still uploaded something worth reporting
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			printResult(cmd.OutOrStdout(), result)
		}
		return err
	}
	printResult(cmd.OutOrStdout(), result)
	return nil
}

func runLocal(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var housekeeper Housekeeper
	if err := housekeeper.LoadConfig(ModeLocal); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	local, err := archive.NewLocal(ctx, args[0])
	if err != nil {
		return err
	}
	if err := housekeeper.PrepareStorage(local, ""); err != nil {
		return err
	}

	result, err := housekeeper.Mirror(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			printMirrorResult(cmd.OutOrStdout(), result)
		}
		return err
	}
	printMirrorResult(cmd.OutOrStdout(), result)
	return nil
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var housekeeper Housekeeper
	if err := housekeeper.LoadConfig(ModeDrive); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	housekeeper.StartHealthcheckServer()

	archiveClient, err := housekeeper.NewDriveArchive(ctx)
	if err != nil {
		return err
	}
	if err := housekeeper.Prepare(ctx, archiveClient, housekeeper.config.Archive.RootFolderID); err != nil {
		return err
	}
	if err := housekeeper.StartSchedule(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	housekeeper.StopSchedule(time.Minute * 5)
	return nil
}

// readArtifacts from the given file paths, a missing file is fatal
func readArtifacts(paths []string) ([]backup.Artifact, error) {
	var artifacts []backup.Artifact
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact %s: %w", p, err)
		}
		artifacts = append(artifacts, backup.Artifact{
			Name:     filepath.Base(p),
			Data:     data,
			MimeType: mimetype.Detect(data).String(),
		})
	}
	return artifacts, nil
}

func printResult(w io.Writer, result backup.Result) {
	fmt.Fprintf(w, "Backup ID:       %s\n", result.ID)
	fmt.Fprintf(w, "Archive folder:  %s\n", result.FolderURL)
	fmt.Fprintf(w, "Tables:          %d\n", result.TablesExported)
	fmt.Fprintf(w, "Storage files:   %d\n", result.StorageFilesExported)
}

func printMirrorResult(w io.Writer, result backup.Result) {
	fmt.Fprintf(w, "Output folder:   %s\n", result.FolderURL)
	fmt.Fprintf(w, "Storage files:   %d\n", result.StorageFilesExported)
}
