// Package backup exports tables and buckets into a dated archive folder.
package backup

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/juju/clock"
	"gopkg.in/yaml.v3"

	"gitlab.com/bboehmke/tenant-backup/internal/archive"
	"gitlab.com/bboehmke/tenant-backup/internal/blob"
	"gitlab.com/bboehmke/tenant-backup/internal/datastore"
)

const (
	databaseFolder = "database"
	storageFolder  = "storage"
)

// Config of a backup run
type Config struct {
	// RootFolderID is the archive folder receiving the dated backup folders
	RootFolderID string

	Tables  []string
	Buckets []string

	Concurrency int
}

// Artifact is an externally produced file stored next to the exports
type Artifact struct {
	Name     string
	Data     []byte
	MimeType string
}

// Result of a backup run
type Result struct {
	ID                   string
	FolderURL            string
	TablesExported       int
	StorageFilesExported int

	Tables  []TableOutcome
	Buckets []BucketReport
}

// Service runs backups of the configured tables and buckets
type Service struct {
	Config Config

	Archive archive.Client
	Rows    datastore.RowSource
	Blobs   blob.Store

	Clock  clock.Clock
	Logger *slog.Logger
}

// NewService with all dependencies
func NewService(config Config, archiveClient archive.Client, rows datastore.RowSource, blobs blob.Store, clk clock.Clock, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Config:  config,
		Archive: archiveClient,
		Rows:    rows,
		Blobs:   blobs,
		Clock:   clk,
		Logger:  logger,
	}
}

// Run a complete backup.
//
// An error is only returned if the backup folders could not be created or
// ctx ended. In the latter case the result holds everything exported so far.
func (s *Service) Run(ctx context.Context, artifacts ...Artifact) (Result, error) {
	started := s.Clock.Now()
	result := Result{ID: NewIdentifier(started)}
	logger := s.Logger.With("backup_id", result.ID, "run_id", uuid.NewString())

	logger.Info("create backup", "tables", len(s.Config.Tables), "buckets", len(s.Config.Buckets))

	// folders must exist before anything is uploaded into them
	rootID, err := s.Archive.CreateFolder(ctx, result.ID, s.Config.RootFolderID)
	if err != nil {
		return result, fmt.Errorf("failed to create backup folder: %w", err)
	}
	result.FolderURL = s.Archive.FolderURL(rootID)

	databaseID, err := s.Archive.CreateFolder(ctx, databaseFolder, rootID)
	if err != nil {
		return result, fmt.Errorf("failed to create %s folder: %w", databaseFolder, err)
	}
	storageID, err := s.Archive.CreateFolder(ctx, storageFolder, rootID)
	if err != nil {
		return result, fmt.Errorf("failed to create %s folder: %w", storageFolder, err)
	}

	logger.Info("> export tables")
	tables := &TableExporter{
		Source:      s.Rows,
		Archive:     s.Archive,
		Logger:      logger,
		Concurrency: s.Config.Concurrency,
	}
	result.Tables = tables.Export(ctx, s.Config.Tables, databaseID)
	result.TablesExported = CountExported(result.Tables)
	if err := ctx.Err(); err != nil {
		return result, err
	}

	logger.Info("> export storage")
	if err := s.archiveBuckets(ctx, logger, storageID, false, &result); err != nil {
		return result, err
	}

	var artifactNames []string
	if len(artifacts) > 0 {
		logger.Info("> upload artifacts")
	}
	for _, artifact := range artifacts {
		if artifact.Name == ManifestName {
			logger.Warn("skipping artifact with reserved name", "artifact", artifact.Name)
			continue
		}
		mimeType := artifact.MimeType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		_, err := s.Archive.Upload(ctx, artifact.Name, bytes.NewReader(artifact.Data), mimeType, rootID)
		if err != nil {
			logger.Warn("failed to upload artifact", "artifact", artifact.Name, "error", err)
			continue
		}
		logger.Info("-> artifact uploaded", "artifact", artifact.Name,
			"size", humanize.Bytes(uint64(len(artifact.Data))))
		artifactNames = append(artifactNames, artifact.Name)
	}

	// the manifest is informational, a failure does not fail the backup
	meta := newManifest(result.ID, started, result.Tables, result.Buckets, artifactNames)
	if err := s.uploadManifest(ctx, meta, rootID); err != nil {
		logger.Warn("failed to upload manifest", "error", err)
	}

	logger.Info("backup finished",
		"tables", result.TablesExported,
		"storage_files", result.StorageFilesExported,
		"duration", s.Clock.Now().Sub(started))
	return result, nil
}

// MirrorStorage copies the configured buckets into storage/<bucket> below
// RootFolderID. Object paths are kept as nested folders, tables are not
// exported and no dated backup folder is created.
func (s *Service) MirrorStorage(ctx context.Context) (Result, error) {
	var result Result
	logger := s.Logger.With("run_id", uuid.NewString())

	logger.Info("mirror storage", "buckets", len(s.Config.Buckets))
	storageID, err := s.Archive.CreateFolder(ctx, storageFolder, s.Config.RootFolderID)
	if err != nil {
		return result, fmt.Errorf("failed to create %s folder: %w", storageFolder, err)
	}
	result.FolderURL = s.Archive.FolderURL(storageID)

	if err := s.archiveBuckets(ctx, logger, storageID, true, &result); err != nil {
		return result, err
	}
	logger.Info("mirror finished", "storage_files", result.StorageFilesExported)
	return result, nil
}

// archiveBuckets below parentID, failing buckets are skipped. Only the end
// of ctx is returned as error.
func (s *Service) archiveBuckets(ctx context.Context, logger *slog.Logger, parentID string, keepPaths bool, result *Result) error {
	storage := &StorageArchiver{
		Store:       s.Blobs,
		Archive:     s.Archive,
		Logger:      logger,
		Concurrency: s.Config.Concurrency,
		KeepPaths:   keepPaths,
	}
	for _, bucket := range s.Config.Buckets {
		if err := ctx.Err(); err != nil {
			return err
		}

		report, err := storage.ArchiveBucket(ctx, bucket, parentID)
		if err != nil {
			logger.Warn("skipping bucket", "bucket", bucket, "error", err)
		}
		result.Buckets = append(result.Buckets, report)
		result.StorageFilesExported += report.Files
	}
	return ctx.Err()
}

func (s *Service) uploadManifest(ctx context.Context, meta *Manifest, folderID string) error {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", ManifestName, err)
	}
	_, err = s.Archive.Upload(ctx, ManifestName, bytes.NewReader(data), "application/yaml", folderID)
	return err
}
