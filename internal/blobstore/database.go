package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/clinicdesk/patientkeeper/internal/datastore/entities"
	"github.com/clinicdesk/patientkeeper/internal/datastore/repository"
	"github.com/clinicdesk/patientkeeper/internal/errors"
)

// DatabaseStore keeps blob bytes inline in the patient_file_blobs table.
// The unique key column provides create-only semantics.
type DatabaseStore struct {
	repo repository.FileBlobRepository
}

// NewDatabaseStore wraps a blob repository.
func NewDatabaseStore(repo repository.FileBlobRepository) *DatabaseStore {
	return &DatabaseStore{repo: repo}
}

// Driver returns DriverDatabase.
func (s *DatabaseStore) Driver() Driver { return DriverDatabase }

// Put reads r fully and inserts one row.
func (s *DatabaseStore) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	key, err := CleanKey(key)
	if err != nil {
		return Info{}, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return Info{}, storageError(err, "write", key)
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}
	sum := sha256.Sum256(data)
	blob := &entities.PatientFileBlob{
		Key:         key,
		Data:        data,
		Size:        int64(len(data)),
		ContentType: contentType,
		SHA256:      hex.EncodeToString(sum[:]),
	}

	if err := s.repo.Create(ctx, blob); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return Info{}, alreadyExists(key)
		}
		return Info{}, sizedStorageError(err, "insert", key, blob.Size)
	}
	return blobInfo(blob), nil
}

// Get loads the row including its bytes.
func (s *DatabaseStore) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	key, err := CleanKey(key)
	if err != nil {
		return Info{}, nil, err
	}

	blob, err := s.repo.Get(ctx, key)
	if err != nil {
		return Info{}, nil, s.mapError(err, "get", key)
	}
	return blobInfo(blob), io.NopCloser(bytes.NewReader(blob.Data)), nil
}

// Head loads the row without its bytes.
func (s *DatabaseStore) Head(ctx context.Context, key string) (Info, error) {
	key, err := CleanKey(key)
	if err != nil {
		return Info{}, err
	}

	blob, err := s.repo.Head(ctx, key)
	if err != nil {
		return Info{}, s.mapError(err, "head", key)
	}
	return blobInfo(blob), nil
}

// Delete removes the row.
func (s *DatabaseStore) Delete(ctx context.Context, key string) (bool, error) {
	key, err := CleanKey(key)
	if err != nil {
		return false, err
	}

	if err := s.repo.Delete(ctx, key); err != nil {
		if errors.Is(err, repository.ErrBlobNotFound) {
			return false, nil
		}
		return false, storageError(err, "delete", key)
	}
	return true, nil
}

// List returns metadata of rows whose key starts with prefix.
func (s *DatabaseStore) List(ctx context.Context, prefix string) ([]Info, error) {
	blobs, err := s.repo.ListKeys(ctx, prefix)
	if err != nil {
		return nil, storageError(err, "list", prefix)
	}

	infos := make([]Info, 0, len(blobs))
	for _, b := range blobs {
		infos = append(infos, blobInfo(b))
	}
	return infos, nil
}

func (s *DatabaseStore) mapError(err error, operation, key string) error {
	if errors.Is(err, repository.ErrBlobNotFound) {
		return notFound(key)
	}
	return storageError(err, operation, key)
}

func blobInfo(b *entities.PatientFileBlob) Info {
	return Info{
		Key:          b.Key,
		Size:         b.Size,
		ContentType:  b.ContentType,
		ETag:         b.SHA256,
		LastModified: b.CreatedAt.UTC(),
	}
}
