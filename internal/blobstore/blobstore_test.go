package blobstore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/patientkeeper/internal/conf"
	"github.com/clinicdesk/patientkeeper/internal/datastore"
	"github.com/clinicdesk/patientkeeper/internal/errors"
	"github.com/clinicdesk/patientkeeper/internal/logger"
)

func newFSStore(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newDatabaseStore(t *testing.T) *DatabaseStore {
	t.Helper()
	m, err := datastore.Open(&conf.DatabaseSettings{
		Type:   conf.DatabaseSQLite,
		SQLite: conf.SQLiteSettings{Path: filepath.Join(t.TempDir(), "blobs.db")},
	}, logger.NewSlogLogger(nil, logger.LogLevelError, nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return NewDatabaseStore(datastore.NewRepositories(m).Blobs)
}

// runStoreContract exercises behavior every driver must share.
func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	payload := []byte("%PDF-1.4 lab results")

	info, err := s.Put(ctx, "patient_1/20240501093000_lab.pdf", bytes.NewReader(payload), PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, "patient_1/20240501093000_lab.pdf", info.Key)
	assert.Equal(t, int64(len(payload)), info.Size)
	assert.Equal(t, "application/pdf", info.ContentType)

	_, err = s.Put(ctx, "patient_1/20240501093000_lab.pdf", bytes.NewReader([]byte("other")), PutOptions{})
	require.ErrorIs(t, err, ErrAlreadyExists)

	got, err := ReadAll(ctx, s, "patient_1/20240501093000_lab.pdf")
	require.NoError(t, err)
	assert.Equal(t, payload, got, "create-only put must not overwrite")

	head, err := s.Head(ctx, "patient_1/20240501093000_lab.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), head.Size)

	_, err = s.Head(ctx, "patient_1/missing.pdf")
	require.ErrorIs(t, err, ErrNotFound)
	assert.True(t, errors.IsNotFound(err))

	_, _, err = s.Get(ctx, "patient_1/missing.pdf")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Put(ctx, "patient_2/20240501093000_xray.png", bytes.NewReader([]byte{0x89, 'P', 'N', 'G'}), PutOptions{ContentType: "image/png"})
	require.NoError(t, err)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "patient_1/20240501093000_lab.pdf", all[0].Key)
	assert.Equal(t, "patient_2/20240501093000_xray.png", all[1].Key)

	scoped, err := s.List(ctx, "patient_2/")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, int64(4), scoped[0].Size)

	none, err := s.List(ctx, "patient_9/")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	deleted, err := s.Delete(ctx, "patient_2/20240501093000_xray.png")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.Delete(ctx, "patient_2/20240501093000_xray.png")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = s.Head(ctx, "patient_2/20240501093000_xray.png")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Put(ctx, "../escape.txt", bytes.NewReader(payload), PutOptions{})
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestStoreContract(t *testing.T) {
	t.Parallel()

	drivers := map[string]func(t *testing.T) Store{
		"fs":       func(t *testing.T) Store { return newFSStore(t) },
		"memory":   func(t *testing.T) Store { return NewMemoryStore() },
		"database": func(t *testing.T) Store { return newDatabaseStore(t) },
		"s3":       func(t *testing.T) Store { return newFakeS3Store(t) },
	}

	for name, build := range drivers {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			runStoreContract(t, build(t))
		})
	}
}

func TestCleanKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{name: "simple", key: "patient_1/a.txt", want: "patient_1/a.txt"},
		{name: "redundant segments", key: "patient_1/./x/../a.txt", want: "patient_1/a.txt"},
		{name: "empty", key: "  ", wantErr: true},
		{name: "absolute", key: "/etc/passwd", wantErr: true},
		{name: "parent", key: "../a.txt", wantErr: true},
		{name: "parent after clean", key: "patient_1/../../a.txt", wantErr: true},
		{name: "dot", key: ".", wantErr: true},
		{name: "backslash", key: `patient_1\a.txt`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := CleanKey(tt.key)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidKey)
				assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFSStoreLayout(t *testing.T) {
	t.Parallel()
	s := newFSStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "patient_7/20240101120000_note.txt", bytes.NewReader([]byte("hello")), PutOptions{})
	require.NoError(t, err)

	onDisk, err := os.ReadFile(filepath.Join(s.Root(), "patient_7", "20240101120000_note.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(onDisk))

	entries, err := os.ReadDir(filepath.Join(s.Root(), "patient_7"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be cleaned up")
}

func TestFSStoreEnsureDir(t *testing.T) {
	t.Parallel()
	s := newFSStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var failures atomic.Int32
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.EnsureDir(ctx, "patient_3"); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, failures.Load(), "concurrent creators must all succeed")

	dir, err := s.EnsureDir(ctx, "patient_3")
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, filepath.Join(s.Root(), "patient_3"), dir)

	_, err = s.EnsureDir(ctx, "../outside")
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestFSStoreListSkipsTempFiles(t *testing.T) {
	t.Parallel()
	s := newFSStore(t)

	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "patient_1"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "patient_1", tempFilePrefix+"abc"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "patient_1", "stray.bin"), []byte("xyz"), 0o600))

	infos, err := s.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "patient_1/stray.bin", infos[0].Key)
	assert.Equal(t, int64(3), infos[0].Size)
}

func TestConcurrentPutSameKey(t *testing.T) {
	t.Parallel()

	for name, s := range map[string]Store{"fs": newFSStore(t), "memory": NewMemoryStore()} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			var wg sync.WaitGroup
			var wins, conflicts atomic.Int32
			for i := range 10 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.Put(ctx, "patient_1/same.txt", bytes.NewReader([]byte{byte(i)}), PutOptions{})
					switch {
					case err == nil:
						wins.Add(1)
					case errors.Is(err, ErrAlreadyExists):
						conflicts.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), wins.Load())
			assert.Equal(t, int32(9), conflicts.Load())
		})
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, err := Open(ctx, &conf.BlobStoreSettings{Driver: "memory"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, s.Driver())

	s, err = Open(ctx, &conf.BlobStoreSettings{Driver: "fs", Root: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, s.Driver())
	_, ok := s.(DirectoryMaker)
	assert.True(t, ok)

	_, err = Open(ctx, &conf.BlobStoreSettings{Driver: "database"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	_, err = Open(ctx, &conf.BlobStoreSettings{Driver: "s3"}, nil)
	require.Error(t, err, "bucket is required")

	_, err = Open(ctx, &conf.BlobStoreSettings{Driver: "ftp"}, nil)
	require.Error(t, err)
}

func TestContentTypeFor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "image/jpeg", ContentTypeFor("patient_1/a.JPG"))
	assert.Equal(t, "application/pdf", ContentTypeFor("a.pdf"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("a"))
}

func TestStorageErrorCarriesFileContext(t *testing.T) {
	t.Parallel()
	err := sizedStorageError(errors.NewStd("disk full"), "sync", "patient_3/20240501093000_ct.PDF", 4096)

	var ee *errors.EnhancedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, errors.CategoryBlobStorage, ee.Category)
	ctx := ee.GetContext()
	assert.Equal(t, "sync", ctx["operation"])
	assert.Equal(t, "pdf", ctx["file_extension"])
	assert.Equal(t, "small", ctx["file_size_category"])

	ctx = storageError(errors.NewStd("gone"), "stat", "patient_3/notes.txt").(*errors.EnhancedError).GetContext()
	assert.Equal(t, "txt", ctx["file_extension"])
	assert.NotContains(t, ctx, "file_size_category")
}
