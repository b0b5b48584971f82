// Package archive writes backup folders and files to an archive target.
package archive

import (
	"context"
	"fmt"
	"io"
)

// Client is a folder based remote archive that only ever receives new content.
type Client interface {
	// CreateFolder creates a folder named name below parentID and returns its ID.
	CreateFolder(ctx context.Context, name, parentID string) (string, error)

	// Upload stores content as file name in folder parentID and returns a URL to it.
	Upload(ctx context.Context, name string, content io.Reader, mimeType, parentID string) (string, error)

	// FolderURL returns a human readable location for a folder ID.
	FolderURL(folderID string) string
}

// Error is returned by all Client implementations if the archive rejected a request.
type Error struct {
	Op   string
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("archive %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
