// Package blob reads buckets from blob storage services.
package blob

import (
	"context"
)

// Entry is one result of a single level listing.
type Entry struct {
	Name string
	// ID is the content identifier of an object, folder markers have none
	ID string
}

// IsFolder returns true if the entry marks a sub folder
func (e Entry) IsFolder() bool {
	return e.ID == ""
}

// Object is a downloaded blob
type Object struct {
	Data        []byte
	ContentType string
}

// Lister lists one level of a bucket
type Lister interface {
	List(ctx context.Context, bucket, folder string) ([]Entry, error)
}

// Store gives read access to buckets
type Store interface {
	Lister
	Download(ctx context.Context, bucket, objectPath string) (Object, error)
}

// JoinPath of a folder and an entry name inside it
func JoinPath(folder, name string) string {
	if folder == "" {
		return name
	}
	return folder + "/" + name
}
