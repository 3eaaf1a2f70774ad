package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	info Info
	data []byte
}

// MemoryStore keeps blobs in process memory. Used by tests.
type MemoryStore struct {
	mu   sync.RWMutex
	objs map[string]memoryEntry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objs: make(map[string]memoryEntry)}
}

// Driver returns DriverMemory.
func (s *MemoryStore) Driver() Driver { return DriverMemory }

// Put stores a copy of r's bytes; errors if key exists.
func (s *MemoryStore) Put(_ context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	key, err := CleanKey(key)
	if err != nil {
		return Info{}, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return Info{}, storageError(err, "write", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[key]; exists {
		return Info{}, alreadyExists(key)
	}

	sum := sha256.Sum256(data)
	contentType := opts.ContentType
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}
	info := Info{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  contentType,
		ETag:         hex.EncodeToString(sum[:]),
		LastModified: time.Now().UTC(),
	}
	s.objs[key] = memoryEntry{info: info, data: data}
	return info, nil
}

// Get returns a reader over a copy of the blob.
func (s *MemoryStore) Get(_ context.Context, key string) (Info, io.ReadCloser, error) {
	key, err := CleanKey(key)
	if err != nil {
		return Info{}, nil, err
	}

	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return Info{}, nil, notFound(key)
	}
	return obj.info, io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), nil
}

// Head returns blob metadata.
func (s *MemoryStore) Head(_ context.Context, key string) (Info, error) {
	key, err := CleanKey(key)
	if err != nil {
		return Info{}, err
	}

	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return Info{}, notFound(key)
	}
	return obj.info, nil
}

// Delete removes the blob if present.
func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	key, err := CleanKey(key)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objs[key]; !ok {
		return false, nil
	}
	delete(s.objs, key)
	return true, nil
}

// List returns blobs whose key starts with prefix.
func (s *MemoryStore) List(_ context.Context, prefix string) ([]Info, error) {
	s.mu.RLock()
	infos := make([]Info, 0, len(s.objs))
	for k, obj := range s.objs {
		if strings.HasPrefix(k, prefix) {
			infos = append(infos, obj.info)
		}
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}
