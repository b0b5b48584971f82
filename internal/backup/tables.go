package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"gitlab.com/bboehmke/tenant-backup/internal/archive"
	"gitlab.com/bboehmke/tenant-backup/internal/datastore"
)

// TableOutcome of a single table export
type TableOutcome struct {
	Table     string
	Succeeded bool
	Records   int
	Err       error
}

// TableExporter uploads complete tables as JSON documents
type TableExporter struct {
	Source  datastore.RowSource
	Archive archive.Client
	Logger  *slog.Logger

	// Concurrency limits parallel exports, values below 2 export sequentially
	Concurrency int
}

// Export every table into folderID.
// Failing tables are logged and skipped, the outcomes keep the table order.
func (e *TableExporter) Export(ctx context.Context, tables []string, folderID string) []TableOutcome {
	outcomes := make([]TableOutcome, len(tables))

	var group errgroup.Group
	group.SetLimit(max(e.Concurrency, 1))
	for i, table := range tables {
		if ctx.Err() != nil {
			outcomes[i] = TableOutcome{Table: table, Err: ctx.Err()}
			continue
		}
		group.Go(func() error {
			outcomes[i] = e.exportTable(ctx, table, folderID)
			return nil
		})
	}
	_ = group.Wait()

	return outcomes
}

func (e *TableExporter) exportTable(ctx context.Context, table, folderID string) TableOutcome {
	outcome := TableOutcome{Table: table}

	rows, err := e.Source.Rows(ctx, table)
	if err != nil {
		outcome.Err = err
		e.Logger.Warn("skipping table", "table", table, "error", err)
		return outcome
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		outcome.Err = fmt.Errorf("failed to encode %s: %w", table, err)
		e.Logger.Warn("skipping table", "table", table, "error", outcome.Err)
		return outcome
	}

	_, err = e.Archive.Upload(ctx, table+".json", bytes.NewReader(data), "application/json", folderID)
	if err != nil {
		outcome.Err = err
		e.Logger.Warn("failed to upload table", "table", table, "error", err)
		return outcome
	}

	e.Logger.Info("-> table exported", "table", table,
		"records", len(rows), "size", humanize.Bytes(uint64(len(data))))
	outcome.Succeeded = true
	outcome.Records = len(rows)
	return outcome
}

// CountExported tables of outcomes
func CountExported(outcomes []TableOutcome) int {
	count := 0
	for _, outcome := range outcomes {
		if outcome.Succeeded {
			count++
		}
	}
	return count
}
