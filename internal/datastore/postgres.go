package datastore

import (
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Postgres reads tables with plain SQL
type Postgres struct {
	db *sql.DB
}

// NewPostgres from a connection URL, no connection is established yet
func NewPostgres(connectionString string) (*Postgres, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an already opened database
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Close the connection pool
func (p *Postgres) Close() error {
	return p.db.Close()
}

// WaitForConnection for a maximum of duration
func (p *Postgres) WaitForConnection(ctx context.Context, duration time.Duration) error {
	// ticker to check every second for a connection
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	timeoutExceeded := time.After(duration)
	for {
		err := p.db.PingContext(ctx)
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeoutExceeded:
			return fmt.Errorf("timeout while trying to connect to database: %w", err)
		case <-ticker.C:
		}
	}
}

// Rows of table in the order returned by the database
func (p *Postgres) Rows(ctx context.Context, table string) ([]Row, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT * FROM "+pq.QuoteIdentifier(table))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types of %s: %w", table, err)
	}

	result := []Row{}
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}

		row := make(Row, len(columns))
		for i, column := range columns {
			row[column] = columnValue(types[i].DatabaseTypeName(), values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	return result, nil
}

// columnValue renders raw bytes like the REST API does. json columns stay
// nested and bytea is written as "\x<hex>".
func columnValue(databaseType string, value any) any {
	b, ok := value.([]byte)
	if !ok {
		return value
	}
	switch strings.ToUpper(databaseType) {
	case "JSON", "JSONB":
		return json.RawMessage(b)
	case "BYTEA":
		return `\x` + hex.EncodeToString(b)
	default:
		return string(b)
	}
}

// Dumper creates a full SQL dump with pg_dump
type Dumper struct {
	ConnectionString string

	// Command defaults to pg_dump from PATH
	Command string
}

// Dump the database gzip compressed into writer
func (d *Dumper) Dump(ctx context.Context, writer io.Writer) error {
	command := d.Command
	if command == "" {
		command = "pg_dump"
	}
	if d.ConnectionString == "" {
		return errors.New("no database to dump")
	}

	gzipWriter := gzip.NewWriter(writer)

	cmd := exec.CommandContext(ctx, command,
		"--no-owner",
		"--dbname", d.ConnectionString)

	// redirect stdout to backup writer
	cmd.Stdout = gzipWriter
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if closeErr := gzipWriter.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("pg_dump failed: %w", err)
	}
	return nil
}
