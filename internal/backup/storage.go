package backup

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"gitlab.com/bboehmke/tenant-backup/internal/archive"
	"gitlab.com/bboehmke/tenant-backup/internal/blob"
)

// PathSeparatorSubstitute replaces "/" in archived file names
const PathSeparatorSubstitute = "__"

// FlattenPath turns an object path into a single file name
func FlattenPath(objectPath string) string {
	return strings.ReplaceAll(objectPath, "/", PathSeparatorSubstitute)
}

// archivedNames flattens all paths of one bucket. Names already taken by an
// earlier path get a "~N" suffix in front of the extension.
func archivedNames(paths []string) []string {
	names := make([]string, len(paths))
	used := make(map[string]bool, len(paths))
	for i, p := range paths {
		name := FlattenPath(p)
		if used[name] {
			ext := path.Ext(name)
			base := strings.TrimSuffix(name, ext)
			for n := 2; ; n++ {
				candidate := fmt.Sprintf("%s~%d%s", base, n, ext)
				if !used[candidate] {
					name = candidate
					break
				}
			}
		}
		used[name] = true
		names[i] = name
	}
	return names
}

// ArchivedObject describes where an object of a bucket ended up
type ArchivedObject struct {
	Path     string
	Name     string
	Archived bool
	Err      error
}

// BucketReport of a single bucket
type BucketReport struct {
	Bucket  string
	Files   int
	Objects []ArchivedObject
	Err     error
}

// StorageArchiver copies buckets into the archive
type StorageArchiver struct {
	Store   blob.Store
	Archive archive.Client
	Logger  *slog.Logger

	// Concurrency limits parallel object copies, values below 2 copy sequentially
	Concurrency int

	// KeepPaths mirrors object paths as nested folders instead of
	// flattening them into the bucket folder
	KeepPaths bool
}

// ArchiveBucket into a new folder named like the bucket below parentID.
//
// The returned error is only set if the folder could not be created or the
// bucket could not be listed. Objects failing to download or upload are
// logged and skipped.
func (a *StorageArchiver) ArchiveBucket(ctx context.Context, bucket, parentID string) (BucketReport, error) {
	report := BucketReport{Bucket: bucket}

	folderID, err := a.Archive.CreateFolder(ctx, bucket, parentID)
	if err != nil {
		report.Err = err
		return report, err
	}

	paths, err := blob.ListRecursive(ctx, a.Store, bucket, "")
	if err != nil {
		report.Err = err
		return report, err
	}
	if len(paths) == 0 {
		a.Logger.Info("-> bucket is empty", "bucket", bucket)
		return report, nil
	}

	names := paths
	if !a.KeepPaths {
		names = archivedNames(paths)
	}
	report.Objects = make([]ArchivedObject, len(paths))

	// folder IDs by object directory, only used with KeepPaths
	folders := map[string]string{"": folderID}

	var group errgroup.Group
	group.SetLimit(max(a.Concurrency, 1))
	for i, objectPath := range paths {
		report.Objects[i] = ArchivedObject{Path: objectPath, Name: names[i]}
		if ctx.Err() != nil {
			report.Objects[i].Err = ctx.Err()
			continue
		}

		name, targetID := names[i], folderID
		if a.KeepPaths {
			name = path.Base(objectPath)
			targetID, err = a.nestedFolder(ctx, folders, path.Dir(objectPath))
			if err != nil {
				a.Logger.Warn("failed to create folder", "bucket", bucket, "path", objectPath, "error", err)
				report.Objects[i].Err = err
				continue
			}
		}

		group.Go(func() error {
			report.Objects[i].Err = a.copyObject(ctx, bucket, objectPath, name, targetID)
			report.Objects[i].Archived = report.Objects[i].Err == nil
			return nil
		})
	}
	_ = group.Wait()

	for _, obj := range report.Objects {
		if obj.Archived {
			report.Files++
		}
	}
	a.Logger.Info("-> bucket archived", "bucket", bucket, "files", report.Files, "objects", len(paths))
	return report, nil
}

// nestedFolder returns the folder ID of dir, missing parents are created first
func (a *StorageArchiver) nestedFolder(ctx context.Context, folders map[string]string, dir string) (string, error) {
	if dir == "." {
		dir = ""
	}
	if id, ok := folders[dir]; ok {
		return id, nil
	}

	parentID, err := a.nestedFolder(ctx, folders, path.Dir(dir))
	if err != nil {
		return "", err
	}
	id, err := a.Archive.CreateFolder(ctx, path.Base(dir), parentID)
	if err != nil {
		return "", err
	}
	folders[dir] = id
	return id, nil
}

func (a *StorageArchiver) copyObject(ctx context.Context, bucket, objectPath, name, folderID string) error {
	obj, err := a.Store.Download(ctx, bucket, objectPath)
	if err != nil {
		a.Logger.Warn("failed to download object", "bucket", bucket, "path", objectPath, "error", err)
		return err
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = mimetype.Detect(obj.Data).String()
	}

	_, err = a.Archive.Upload(ctx, name, bytes.NewReader(obj.Data), contentType, folderID)
	if err != nil {
		a.Logger.Warn("failed to upload object", "bucket", bucket, "path", objectPath, "error", err)
		return err
	}

	a.Logger.Debug("-> object archived", "bucket", bucket, "path", objectPath,
		"name", name, "size", humanize.Bytes(uint64(len(obj.Data))))
	return nil
}
