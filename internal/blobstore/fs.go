package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/clinicdesk/patientkeeper/internal/errors"
)

const (
	dirPermissions  = 0o750
	filePermissions = 0o640
	tempFilePrefix  = ".tmp-"
)

// FSStore keeps blobs as plain files under a root directory. Keys map
// directly to relative paths, so an operator can browse the tree.
// All access goes through os.Root so no key can reach outside the root.
type FSStore struct {
	root    *os.Root
	rootDir string
}

// NewFSStore opens (creating if needed) a filesystem store rooted at dir.
func NewFSStore(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, errors.Newf("blob store root directory is required").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, storageError(fmt.Errorf("failed to resolve blob root: %w", err), "open", dir)
	}
	if err := os.MkdirAll(absDir, dirPermissions); err != nil {
		return nil, errors.New(fmt.Errorf("failed to create blob root: %w", err)).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Context("root", absDir).
			Build()
	}

	root, err := os.OpenRoot(absDir)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open blob root: %w", err)).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Context("root", absDir).
			Build()
	}

	return &FSStore{root: root, rootDir: absDir}, nil
}

// Driver returns DriverFilesystem.
func (s *FSStore) Driver() Driver { return DriverFilesystem }

// Root returns the absolute root directory.
func (s *FSStore) Root() string { return s.rootDir }

// Close releases the root directory handle.
func (s *FSStore) Close() error { return s.root.Close() }

// EnsureDir creates the directory for prefix. Concurrent creators are fine.
func (s *FSStore) EnsureDir(_ context.Context, prefix string) (string, error) {
	key, err := CleanKey(prefix)
	if err != nil {
		return "", err
	}
	if err := s.root.MkdirAll(filepath.FromSlash(key), dirPermissions); err != nil {
		return "", storageError(err, "mkdir", key)
	}
	return filepath.Join(s.rootDir, filepath.FromSlash(key)), nil
}

// Put streams r to a temp file in the target directory, then hard-links it
// into place. Linking fails if the name exists, which makes Put create-only
// even across processes sharing the directory.
func (s *FSStore) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	key, err := CleanKey(key)
	if err != nil {
		return Info{}, err
	}
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}

	dataPath := filepath.FromSlash(key)
	if _, err := s.root.Stat(dataPath); err == nil {
		return Info{}, alreadyExists(key)
	}

	dir := filepath.Dir(dataPath)
	if err := s.root.MkdirAll(dir, dirPermissions); err != nil {
		return Info{}, storageError(err, "mkdir", key)
	}

	tmpPath := filepath.Join(dir, tempFilePrefix+uuid.NewString())
	tmp, err := s.root.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePermissions)
	if err != nil {
		return Info{}, storageError(err, "create", key)
	}
	defer func() { _ = s.root.Remove(tmpPath) }()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		_ = tmp.Close()
		return Info{}, storageError(err, "write", key)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return Info{}, sizedStorageError(err, "sync", key, size)
	}
	if err := tmp.Close(); err != nil {
		return Info{}, sizedStorageError(err, "close", key, size)
	}

	if err := s.root.Link(tmpPath, dataPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return Info{}, alreadyExists(key)
		}
		return Info{}, sizedStorageError(err, "link", key, size)
	}

	fi, err := s.root.Stat(dataPath)
	if err != nil {
		return Info{}, storageError(err, "stat", key)
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}
	return Info{
		Key:          key,
		Size:         size,
		ContentType:  contentType,
		ETag:         hex.EncodeToString(h.Sum(nil)),
		LastModified: fi.ModTime().UTC(),
	}, nil
}

// Get opens the blob file for reading.
func (s *FSStore) Get(_ context.Context, key string) (Info, io.ReadCloser, error) {
	key, err := CleanKey(key)
	if err != nil {
		return Info{}, nil, err
	}

	f, err := s.root.Open(filepath.FromSlash(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, nil, notFound(key)
		}
		return Info{}, nil, storageError(err, "open", key)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return Info{}, nil, storageError(err, "stat", key)
	}
	if !fi.Mode().IsRegular() {
		_ = f.Close()
		return Info{}, nil, notFound(key)
	}

	return s.infoFor(key, fi), f, nil
}

// Head stats the blob file. The ETag is left empty to avoid hashing on every call.
func (s *FSStore) Head(_ context.Context, key string) (Info, error) {
	key, err := CleanKey(key)
	if err != nil {
		return Info{}, err
	}

	fi, err := s.root.Stat(filepath.FromSlash(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, notFound(key)
		}
		return Info{}, storageError(err, "stat", key)
	}
	if !fi.Mode().IsRegular() {
		return Info{}, notFound(key)
	}
	return s.infoFor(key, fi), nil
}

// Delete removes the blob file.
func (s *FSStore) Delete(_ context.Context, key string) (bool, error) {
	key, err := CleanKey(key)
	if err != nil {
		return false, err
	}

	if err := s.root.Remove(filepath.FromSlash(key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, storageError(err, "delete", key)
	}
	return true, nil
}

// List walks the tree and returns every regular file whose key has prefix.
// In-flight temp files are skipped.
func (s *FSStore) List(ctx context.Context, prefix string) ([]Info, error) {
	infos := make([]Info, 0)
	err := fs.WalkDir(s.root.FS(), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasPrefix(path.Base(p), tempFilePrefix) || !d.Type().IsRegular() {
			return nil
		}
		if prefix != "" && !strings.HasPrefix(p, prefix) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			// removed between readdir and stat
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		infos = append(infos, s.infoFor(p, fi))
		return nil
	})
	if err != nil {
		return nil, storageError(err, "list", prefix)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *FSStore) infoFor(key string, fi fs.FileInfo) Info {
	return Info{
		Key:          key,
		Size:         fi.Size(),
		ContentType:  ContentTypeFor(key),
		LastModified: fi.ModTime().UTC(),
	}
}
