// Package blobstore stores uploaded file bytes under string keys.
//
// Every driver implements the same contract: Put is create-only and fails
// with ErrAlreadyExists when the key is taken, so callers can use it as a
// uniqueness guard. Keys are slash-separated and relative, for example
// "patient_12/20240501093000_scan.pdf".
package blobstore

import (
	"context"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/clinicdesk/patientkeeper/internal/errors"
)

// Driver identifies a blob storage backend.
type Driver string

const (
	// DriverFilesystem stores blobs in a directory tree (default).
	DriverFilesystem Driver = "fs"
	// DriverMemory keeps blobs in process memory (tests).
	DriverMemory Driver = "memory"
	// DriverDatabase stores blobs inline in the relational store.
	DriverDatabase Driver = "database"
	// DriverS3 stores blobs in an S3 or MinIO compatible bucket.
	DriverS3 Driver = "s3"
)

const componentName = "blobstore"

// Sentinel errors. Driver failures wrap one of these where a caller
// needs to tell them apart.
var (
	// ErrNotFound indicates no blob exists for the key.
	ErrNotFound = errors.NewStd("blob not found")

	// ErrAlreadyExists indicates Put was called for a key that is taken.
	ErrAlreadyExists = errors.NewStd("blob already exists")

	// ErrInvalidKey indicates a key that is empty, absolute or escapes the store.
	ErrInvalidKey = errors.NewStd("invalid blob key")
)

// PutOptions carries optional attributes for Put.
type PutOptions struct {
	ContentType string
}

// Info describes a stored blob.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Store is the blob storage contract shared by all drivers.
type Store interface {
	// Put writes r under key. It fails with ErrAlreadyExists if the key is taken.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get opens the blob for reading. The caller closes the reader.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// Head returns blob metadata, or ErrNotFound.
	Head(ctx context.Context, key string) (Info, error)
	// Delete removes the blob and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns all blobs whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	// Driver names the backend.
	Driver() Driver
}

// DirectoryMaker is implemented by stores that have real directories.
// Stores without it treat key prefixes as implicit directories.
type DirectoryMaker interface {
	// EnsureDir creates the directory for prefix if missing and returns its path.
	EnsureDir(ctx context.Context, prefix string) (string, error)
}

// Rooted is implemented by stores backed by a local directory.
type Rooted interface {
	Root() string
}

// CleanKey validates key and returns its canonical form.
func CleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", invalidKey(key, "empty key")
	}
	if strings.ContainsRune(key, '\\') || strings.ContainsRune(key, 0) {
		return "", invalidKey(key, "illegal character")
	}
	if strings.HasPrefix(key, "/") {
		return "", invalidKey(key, "absolute key")
	}

	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", invalidKey(key, "key escapes store root")
	}
	return cleaned, nil
}

// ReadAll reads a whole blob into memory.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	_, rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, storageError(err, "read", key)
	}
	return data, nil
}

// ContentTypeFor guesses a MIME type from the key's extension.
func ContentTypeFor(key string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(key))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func invalidKey(key, reason string) error {
	return errors.New(errors.Join(ErrInvalidKey, errors.NewStd(reason))).
		Component(componentName).
		Category(errors.CategoryValidation).
		Context("key", key).
		Build()
}

func notFound(key string) error {
	return errors.New(ErrNotFound).
		Component(componentName).
		Category(errors.CategoryNotFound).
		Context("key", key).
		Build()
}

func alreadyExists(key string) error {
	return errors.New(ErrAlreadyExists).
		Component(componentName).
		Category(errors.CategoryConflict).
		Context("key", key).
		Build()
}

func storageError(err error, operation, key string) error {
	return sizedStorageError(err, operation, key, 0)
}

// sizedStorageError is storageError for failures where the payload size is known.
func sizedStorageError(err error, operation, key string, size int64) error {
	return errors.New(err).
		Component(componentName).
		Category(errors.CategoryBlobStorage).
		Context("operation", operation).
		Context("key", key).
		FileContext(key, size).
		Build()
}
