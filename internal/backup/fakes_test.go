package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"gitlab.com/bboehmke/tenant-backup/internal/archive"
	"gitlab.com/bboehmke/tenant-backup/internal/blob"
	"gitlab.com/bboehmke/tenant-backup/internal/datastore"
)

const testRoot = "root"

// memoryArchive keeps folders and files in memory, keyed by their full path
type memoryArchive struct {
	mu      sync.Mutex
	nextID  int
	folders map[string]string
	files   map[string][]byte
	mime    map[string]string
	uploads map[string]int

	failFolders map[string]bool
	failUploads map[string]bool
}

func newMemoryArchive() *memoryArchive {
	return &memoryArchive{
		folders:     map[string]string{testRoot: testRoot},
		files:       make(map[string][]byte),
		mime:        make(map[string]string),
		uploads:     make(map[string]int),
		failFolders: make(map[string]bool),
		failUploads: make(map[string]bool),
	}
}

func (m *memoryArchive) CreateFolder(_ context.Context, name, parentID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failFolders[name] {
		return "", &archive.Error{Op: "create folder", Name: name, Err: errors.New("quota exceeded")}
	}
	parent, ok := m.folders[parentID]
	if !ok {
		return "", &archive.Error{Op: "create folder", Name: name, Err: errors.New("invalid parent")}
	}

	m.nextID++
	id := fmt.Sprintf("folder-%d", m.nextID)
	m.folders[id] = parent + "/" + name
	return id, nil
}

func (m *memoryArchive) Upload(_ context.Context, name string, content io.Reader, mimeType, parentID string) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failUploads[name] {
		return "", &archive.Error{Op: "upload", Name: name, Err: errors.New("upload rejected")}
	}
	parent, ok := m.folders[parentID]
	if !ok {
		return "", &archive.Error{Op: "upload", Name: name, Err: errors.New("invalid parent")}
	}

	p := parent + "/" + name
	m.files[p] = data
	m.mime[p] = mimeType
	m.uploads[p]++
	return "mem://" + p, nil
}

func (m *memoryArchive) FolderURL(folderID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return "mem://" + m.folders[folderID]
}

func (m *memoryArchive) file(p string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[p]
	return data, ok
}

func (m *memoryArchive) fileNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.files {
		names = append(names, name)
	}
	return names
}

// memoryRows serves fixed rows per table
type memoryRows struct {
	tables map[string][]datastore.Row
	fail   map[string]error
}

func (r *memoryRows) Rows(_ context.Context, table string) ([]datastore.Row, error) {
	if err := r.fail[table]; err != nil {
		return nil, err
	}
	rows, ok := r.tables[table]
	if !ok {
		return nil, fmt.Errorf("relation %q does not exist", table)
	}
	return rows, nil
}

// memoryStore is a bucket tree: bucket -> folder -> entries
type memoryStore struct {
	mu      sync.Mutex
	levels  map[string]map[string][]blob.Entry
	objects map[string]blob.Object

	listErr     map[string]error
	downloadErr map[string]error
	listCalls   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		levels:      make(map[string]map[string][]blob.Entry),
		objects:     make(map[string]blob.Object),
		listErr:     make(map[string]error),
		downloadErr: make(map[string]error),
	}
}

// add an object and all folder markers leading to it
func (s *memoryStore) add(bucket, objectPath string, data []byte, contentType string) {
	if s.levels[bucket] == nil {
		s.levels[bucket] = make(map[string][]blob.Entry)
	}

	folder := ""
	parts := strings.Split(objectPath, "/")
	for i, name := range parts {
		last := i == len(parts)-1

		entry := blob.Entry{Name: name}
		if last {
			entry.ID = "id-" + objectPath
		}
		if !containsEntry(s.levels[bucket][folder], entry) {
			s.levels[bucket][folder] = append(s.levels[bucket][folder], entry)
		}
		folder = blob.JoinPath(folder, name)
	}
	s.objects[bucket+"/"+objectPath] = blob.Object{Data: data, ContentType: contentType}
}

func containsEntry(entries []blob.Entry, entry blob.Entry) bool {
	for _, e := range entries {
		if e == entry {
			return true
		}
	}
	return false
}

func (s *memoryStore) List(_ context.Context, bucket, folder string) ([]blob.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++

	if err := s.listErr[bucket]; err != nil {
		return nil, err
	}
	return s.levels[bucket][folder], nil
}

func (s *memoryStore) Download(_ context.Context, bucket, objectPath string) (blob.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.downloadErr[objectPath]; err != nil {
		return blob.Object{}, err
	}
	obj, ok := s.objects[bucket+"/"+objectPath]
	if !ok {
		return blob.Object{}, fmt.Errorf("object %s/%s not found", bucket, objectPath)
	}
	return obj, nil
}

// syncBuffer collects log output of concurrent workers
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}
