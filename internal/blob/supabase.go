package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
)

// supabasePageSize is the largest page the storage API returns
const supabasePageSize = 1000

// Supabase storage API client
type Supabase struct {
	client *resty.Client
}

// NewSupabase creates a storage client for a project URL authenticated with a
// service role key so every bucket can be read regardless of its policies.
func NewSupabase(projectURL, serviceKey string) *Supabase {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(projectURL, "/")+"/storage/v1").
		SetHeader("apikey", serviceKey).
		SetAuthToken(serviceKey)
	return &Supabase{client: client}
}

type supabaseListRequest struct {
	Prefix string             `json:"prefix"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
	SortBy supabaseListSortBy `json:"sortBy"`
}

type supabaseListSortBy struct {
	Column string `json:"column"`
	Order  string `json:"order"`
}

type supabaseEntry struct {
	Name string  `json:"name"`
	ID   *string `json:"id"`
}

type supabaseError struct {
	StatusCode string `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func (e *supabaseError) err(status string) error {
	switch {
	case e.Message != "":
		return errors.New(e.Message)
	case e.Error != "":
		return errors.New(e.Error)
	}
	return errors.New(status)
}

// List one level of bucket below folder
func (s *Supabase) List(ctx context.Context, bucket, folder string) ([]Entry, error) {
	var entries []Entry
	for offset := 0; ; offset += supabasePageSize {
		var page []supabaseEntry
		var apiErr supabaseError
		resp, err := s.client.R().
			SetContext(ctx).
			SetBody(supabaseListRequest{
				Prefix: folder,
				Limit:  supabasePageSize,
				Offset: offset,
				SortBy: supabaseListSortBy{Column: "name", Order: "asc"},
			}).
			SetResult(&page).
			SetError(&apiErr).
			Post("/object/list/" + url.PathEscape(bucket))
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, apiErr.err(resp.Status())
		}

		for _, item := range page {
			entry := Entry{Name: item.Name}
			if item.ID != nil {
				entry.ID = *item.ID
			}
			entries = append(entries, entry)
		}
		if len(page) < supabasePageSize {
			return entries, nil
		}
	}
}

// Download an object of bucket
func (s *Supabase) Download(ctx context.Context, bucket, objectPath string) (Object, error) {
	var apiErr supabaseError
	resp, err := s.client.R().
		SetContext(ctx).
		SetError(&apiErr).
		Get("/object/" + url.PathEscape(bucket) + "/" + escapePath(objectPath))
	if err != nil {
		return Object{}, fmt.Errorf("failed to download %s/%s: %w", bucket, objectPath, err)
	}
	if resp.IsError() {
		return Object{}, fmt.Errorf("failed to download %s/%s: %w", bucket, objectPath, apiErr.err(resp.Status()))
	}

	return Object{
		Data:        resp.Body(),
		ContentType: resp.Header().Get("Content-Type"),
	}, nil
}

func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
