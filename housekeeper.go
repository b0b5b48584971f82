package main

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-errors/errors"
	"github.com/juju/clock"
	"github.com/robfig/cron/v3"

	"gitlab.com/bboehmke/tenant-backup/internal/archive"
	"gitlab.com/bboehmke/tenant-backup/internal/backup"
	"gitlab.com/bboehmke/tenant-backup/internal/blob"
	"gitlab.com/bboehmke/tenant-backup/internal/datastore"
	"gitlab.com/bboehmke/tenant-backup/internal/logging"
)

const socket = "/tmp/tenant-backup.socket"

// pgDumpArtifact is the name of the pg_dump output in the backup folder
const pgDumpArtifact = "database.sql.gz"

type Housekeeper struct {
	config Config
	logger *slog.Logger

	rows    datastore.RowSource
	blobs   blob.Store
	dumper  *datastore.Dumper
	service *backup.Service

	cron      *cron.Cron
	cronEntry cron.EntryID

	running atomic.Bool
}

// ServeHTTP handles health check
func (h *Housekeeper) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if h.running.Load() {
		writer.WriteHeader(http.StatusOK)
	} else {
		writer.WriteHeader(http.StatusNoContent)
	}
}

func (h *Housekeeper) StartHealthcheckServer() {
	// start http server
	go func() {
		_ = os.Remove(socket)
		unixListener, err := net.Listen("unix", socket)
		if err != nil {
			h.logger.Error("failed to create socket", "error", err)
			os.Exit(1)
		}
		err = http.Serve(unixListener, h)
		h.logger.Error("health check server stopped", "error", err)
		os.Exit(1)
	}()
}

func (h *Housekeeper) Healthcheck() error {
	client := http.Client{
		Timeout: time.Millisecond * 100,
		Transport: &http.Transport{
			DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", socket)
			},
		},
	}

	response, err := client.Get("http://unix" + socket)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return errors.New("backup scheduler not ready")
	}

	return nil
}

// LoadConfig from environment
func (h *Housekeeper) LoadConfig(mode Mode) error {
	config, err := LoadConfig(mode)
	if err != nil {
		return err
	}
	h.config = config
	h.logger = logging.Setup(config.LogLevel)
	return nil
}

// NewDriveArchive from the configured service credential
func (h *Housekeeper) NewDriveArchive(ctx context.Context) (archive.Client, error) {
	return archive.NewDrive(ctx, []byte(h.config.Archive.ServiceCredential))
}

// Prepare sources and the backup service writing into archiveClient
func (h *Housekeeper) Prepare(ctx context.Context, archiveClient archive.Client, rootFolderID string) error {
	rows, err := datastore.Open(h.config.DataStore.URL, h.config.DataStore.AdminKey)
	if err != nil {
		return err
	}
	h.rows = rows

	if postgres, ok := rows.(*datastore.Postgres); ok {
		h.logger.Info("Wait for database connection")
		err := postgres.WaitForConnection(ctx, h.config.DataStore.ConnectTimeout)
		if err != nil {
			return err
		}
	}

	if err := h.openBlobStore(); err != nil {
		return err
	}

	if h.config.DataStore.PgDumpURL != "" {
		h.dumper = &datastore.Dumper{ConnectionString: h.config.DataStore.PgDumpURL}
	}

	h.service = backup.NewService(backup.Config{
		RootFolderID: rootFolderID,
		Tables:       h.config.Backup.Tables,
		Buckets:      h.config.Backup.Buckets,
		Concurrency:  h.config.Backup.Concurrency,
	}, archiveClient, h.rows, h.blobs, clock.WallClock, h.logger)

	h.running.Store(true)
	return nil
}

// PrepareStorage for a storage mirror into archiveClient, no data store is opened
func (h *Housekeeper) PrepareStorage(archiveClient archive.Client, rootFolderID string) error {
	if err := h.openBlobStore(); err != nil {
		return err
	}

	h.service = backup.NewService(backup.Config{
		RootFolderID: rootFolderID,
		Buckets:      h.config.Backup.Buckets,
		Concurrency:  h.config.Backup.Concurrency,
	}, archiveClient, nil, h.blobs, clock.WallClock, h.logger)
	return nil
}

func (h *Housekeeper) openBlobStore() error {
	switch h.config.Storage.Provider {
	case "s3":
		store, err := blob.NewMinIO(blob.MinIOConfig{
			Endpoint:  h.config.Storage.S3Endpoint,
			AccessKey: h.config.Storage.S3AccessKey,
			SecretKey: h.config.Storage.S3SecretKey,
			UseSSL:    h.config.Storage.S3UseSSL,
		})
		if err != nil {
			return err
		}
		h.blobs = store
	default:
		h.blobs = blob.NewSupabase(h.config.Storage.URL, h.config.DataStore.AdminKey)
	}
	return nil
}

// Mirror copies all configured buckets keeping the object paths
func (h *Housekeeper) Mirror(ctx context.Context) (backup.Result, error) {
	if h.config.Backup.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Backup.Timeout)
		defer cancel()
	}
	return h.service.MirrorStorage(ctx)
}

// Backup runs a single backup including the configured pg_dump
func (h *Housekeeper) Backup(ctx context.Context, artifacts ...backup.Artifact) (backup.Result, error) {
	if h.config.Backup.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Backup.Timeout)
		defer cancel()
	}

	if h.dumper != nil {
		h.logger.Info("> dump database")
		var buf bytes.Buffer
		if err := h.dumper.Dump(ctx, &buf); err != nil {
			h.logger.Warn("database dump not included", "error", err)
		} else {
			artifacts = append(artifacts, backup.Artifact{
				Name:     pgDumpArtifact,
				Data:     buf.Bytes(),
				MimeType: "application/gzip",
			})
		}
	}

	return h.service.Run(ctx, artifacts...)
}

// StartSchedule of backup cron
func (h *Housekeeper) StartSchedule(ctx context.Context) error {
	// never run two backups of this process at the same time
	h.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	h.cron.Start()

	var err error
	h.cronEntry, err = h.cron.AddFunc(h.config.Backup.Schedule, func() {
		result, err := h.Backup(ctx)
		if err != nil {
			h.logger.Error("backup failed", "error", err)
		} else {
			h.logger.Info("backup done", "backup_id", result.ID, "folder", result.FolderURL,
				"tables", result.TablesExported, "storage_files", result.StorageFilesExported)
		}
		h.logger.Info("next backup", "at", h.cron.Entry(h.cronEntry).Next)
	})
	if err != nil {
		return errors.Errorf("failed to create backup schedule: %v", err)
	}
	h.logger.Info("next backup", "at", h.cron.Entry(h.cronEntry).Next)
	return nil
}

// StopSchedule cron of backup
func (h *Housekeeper) StopSchedule(timeout time.Duration) {
	if h.cron != nil {
		ctx := h.cron.Stop()
		select {
		case <-ctx.Done():
		case <-time.After(timeout):
		}
	}
}
