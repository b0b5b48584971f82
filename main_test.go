package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/bboehmke/tenant-backup/internal/backup"
)

func TestReadArtifacts(t *testing.T) {
	artifacts, err := readArtifacts(nil)
	require.NoError(t, err)
	assert.Empty(t, artifacts)

	dump := filepath.Join(t.TempDir(), "database.sql.gz")
	require.NoError(t, os.WriteFile(dump, []byte{0x1f, 0x8b, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00}, 0o600))

	artifacts, err = readArtifacts([]string{dump})
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "database.sql.gz", artifacts[0].Name)
	assert.Equal(t, "application/gzip", artifacts[0].MimeType)
}

func TestReadArtifacts_Missing(t *testing.T) {
	_, err := readArtifacts([]string{filepath.Join(t.TempDir(), "missing.sql.gz")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.sql.gz")
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, backup.Result{
		ID:                   "backup_20240305_060708",
		FolderURL:            "https://drive.google.com/drive/folders/abc",
		TablesExported:       11,
		StorageFilesExported: 42,
	})

	assert.Equal(t, `Backup ID:       backup_20240305_060708
Archive folder:  https://drive.google.com/drive/folders/abc
Tables:          11
Storage files:   42
`, buf.String())
}

func TestPrintMirrorResult(t *testing.T) {
	var buf bytes.Buffer
	printMirrorResult(&buf, backup.Result{
		FolderURL:            "/srv/backup/storage",
		StorageFilesExported: 7,
	})

	assert.Equal(t, `Output folder:   /srv/backup/storage
Storage files:   7
`, buf.String())
}

func TestRootCommand_Args(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"a", "b"})
	assert.Error(t, cmd.Execute())

	cmd = newRootCommand()
	cmd.SetArgs([]string{"local"})
	assert.Error(t, cmd.Execute())
}
