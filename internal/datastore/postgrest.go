package datastore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
)

// PostgREST reads tables through the REST interface of a hosted project.
// The admin key bypasses row level security so every row is exported.
type PostgREST struct {
	client *resty.Client
}

// NewPostgREST for projectURL using adminKey
func NewPostgREST(projectURL, adminKey string) *PostgREST {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(projectURL, "/")+"/rest/v1").
		SetHeader("apikey", adminKey).
		SetHeader("Accept", "application/json").
		SetAuthToken(adminKey)
	return &PostgREST{client: client}
}

type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// Rows of table
func (p *PostgREST) Rows(ctx context.Context, table string) ([]Row, error) {
	var rows []Row
	var apiErr postgrestError
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("select", "*").
		SetResult(&rows).
		SetError(&apiErr).
		Get("/" + url.PathEscape(table))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	if resp.IsError() {
		msg := apiErr.Message
		if msg == "" {
			msg = resp.Status()
		}
		return nil, fmt.Errorf("failed to query %s: %w", table, errors.New(msg))
	}

	if rows == nil {
		rows = []Row{}
	}
	return rows, nil
}
