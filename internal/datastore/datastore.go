// Package datastore reads complete tables of the relational data store.
package datastore

import (
	"context"
	"fmt"
	"net/url"
)

// Row of a table, the column set is not known in advance
type Row = map[string]any

// RowSource returns all rows of a table
type RowSource interface {
	Rows(ctx context.Context, table string) ([]Row, error)
}

// Open a row source for the given data store URL.
//
// postgres:// URLs are read directly with SQL, http(s):// URLs are treated as
// a project URL with a PostgREST endpoint below /rest/v1.
func Open(storeURL, adminKey string) (RowSource, error) {
	u, err := url.Parse(storeURL)
	if err != nil {
		return nil, fmt.Errorf("invalid data store url: %w", err)
	}

	switch u.Scheme {
	case "postgres", "postgresql":
		return NewPostgres(storeURL)
	case "http", "https":
		return NewPostgREST(storeURL, adminKey), nil
	default:
		return nil, fmt.Errorf("unsupported data store url scheme %q", u.Scheme)
	}
}
