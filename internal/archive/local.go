package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"time"

	_ "github.com/rclone/rclone/backend/local"
	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/object"
)

// Local writes the archive into a directory through rclone.
// Folder IDs are slash separated paths relative to that directory.
type Local struct {
	fs  fs.Fs
	dir string
}

// NewLocal archive in dir, the directory is created if missing
func NewLocal(ctx context.Context, dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output dir %s: %w", dir, err)
	}

	f, err := fs.NewFs(ctx, abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open output dir %s: %w", abs, err)
	}
	if err := f.Mkdir(ctx, ""); err != nil {
		return nil, fmt.Errorf("failed to create output dir %s: %w", abs, err)
	}
	return &Local{fs: f, dir: abs}, nil
}

// CreateFolder below parentID ("" is the output directory)
func (l *Local) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	dir := path.Join(parentID, name)
	if err := l.fs.Mkdir(ctx, dir); err != nil {
		return "", &Error{Op: "create folder", Name: name, Err: err}
	}
	return dir, nil
}

// Upload content into the folder parentID
func (l *Local) Upload(ctx context.Context, name string, content io.Reader, _ string, parentID string) (string, error) {
	// rclone wants to know the size up front
	data, err := io.ReadAll(content)
	if err != nil {
		return "", &Error{Op: "upload", Name: name, Err: err}
	}

	remote := path.Join(parentID, name)
	info := object.NewStaticObjectInfo(remote, time.Now(), int64(len(data)), true, nil, l.fs)
	if _, err := l.fs.Put(ctx, bytes.NewReader(data), info); err != nil {
		return "", &Error{Op: "upload", Name: name, Err: err}
	}
	return l.location(remote), nil
}

// FolderURL returns the local path of the folder
func (l *Local) FolderURL(folderID string) string {
	return l.location(folderID)
}

func (l *Local) location(remote string) string {
	return filepath.Join(l.dir, filepath.FromSlash(remote))
}
