package archive

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Drive stores the archive in Google Drive.
type Drive struct {
	service *drive.Service
}

// NewDrive creates a Drive archive authenticated with a service account.
//
// The client only requests the drive.file scope: it can create files and
// read back what it created itself, nothing else in the drive.
func NewDrive(ctx context.Context, credentialJSON []byte, opts ...option.ClientOption) (*Drive, error) {
	if len(credentialJSON) == 0 {
		return nil, errors.New("drive service credential is empty")
	}

	opts = append([]option.ClientOption{
		option.WithCredentialsJSON(credentialJSON),
		option.WithScopes(drive.DriveFileScope),
	}, opts...)
	return newDrive(ctx, opts...)
}

func newDrive(ctx context.Context, opts ...option.ClientOption) (*Drive, error) {
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}
	return &Drive{service: service}, nil
}

// CreateFolder in drive below parentID
func (d *Drive) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	file, err := d.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}).Fields("id").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", &Error{Op: "create folder", Name: name, Err: err}
	}
	if file.Id == "" {
		return "", &Error{Op: "create folder", Name: name, Err: errors.New("no folder id returned")}
	}
	return file.Id, nil
}

// Upload content as new file in parentID
func (d *Drive) Upload(ctx context.Context, name string, content io.Reader, mimeType, parentID string) (string, error) {
	file, err := d.service.Files.Create(&drive.File{
		Name:    name,
		Parents: []string{parentID},
	}).Media(content, googleapi.ContentType(mimeType)).
		Fields("id", "webViewLink").
		SupportsAllDrives(true).
		Context(ctx).Do()
	if err != nil {
		return "", &Error{Op: "upload", Name: name, Err: err}
	}

	if file.WebViewLink != "" {
		return file.WebViewLink, nil
	}
	return "https://drive.google.com/file/d/" + file.Id, nil
}

// FolderURL of a drive folder
func (d *Drive) FolderURL(folderID string) string {
	return "https://drive.google.com/drive/folders/" + folderID
}
