package blobstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// fakeS3 is a path-style S3 endpoint with just enough of the API for S3Store.
type fakeS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string]fakeObject
}

type listResult struct {
	XMLName     xml.Name       `xml:"ListBucketResult"`
	Name        string         `xml:"Name"`
	Prefix      string         `xml:"Prefix"`
	KeyCount    int            `xml:"KeyCount"`
	IsTruncated bool           `xml:"IsTruncated"`
	Contents    []listContents `xml:"Contents"`
}

type listContents struct {
	Key          string `xml:"Key"`
	Size         int64  `xml:"Size"`
	ETag         string `xml:"ETag"`
	LastModified string `xml:"LastModified"`
}

func etagOf(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func writeS3Error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, "<Error><Code>%s</Code><Message>%s</Message></Error>", code, code)
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rest, ok := strings.CutPrefix(r.URL.Path, "/"+f.bucket)
	if !ok {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket")
		return
	}
	key := strings.TrimPrefix(rest, "/")

	if key == "" && r.Method == http.MethodGet {
		f.list(w, r.URL.Query().Get("prefix"))
		return
	}

	obj, exists := f.objects[key]
	switch r.Method {
	case http.MethodPut:
		if exists && r.Header.Get("If-None-Match") == "*" {
			writeS3Error(w, http.StatusPreconditionFailed, "PreconditionFailed")
			return
		}
		data, err := io.ReadAll(r.Body)
		if err != nil {
			writeS3Error(w, http.StatusInternalServerError, "InternalError")
			return
		}
		f.objects[key] = fakeObject{data: data, contentType: r.Header.Get("Content-Type"), modified: time.Now().UTC()}
		w.Header().Set("ETag", etagOf(data))
		w.WriteHeader(http.StatusOK)
	case http.MethodHead, http.MethodGet:
		if !exists {
			writeS3Error(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
		w.Header().Set("Content-Type", obj.contentType)
		w.Header().Set("ETag", etagOf(obj.data))
		w.Header().Set("Last-Modified", obj.modified.Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(obj.data)
		}
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeS3Error(w, http.StatusMethodNotAllowed, "MethodNotAllowed")
	}
}

func (f *fakeS3) list(w http.ResponseWriter, prefix string) {
	res := listResult{Name: f.bucket, Prefix: prefix}
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		obj := f.objects[k]
		res.Contents = append(res.Contents, listContents{
			Key:          k,
			Size:         int64(len(obj.data)),
			ETag:         etagOf(obj.data),
			LastModified: obj.modified.Format(time.RFC3339),
		})
	}
	res.KeyCount = len(res.Contents)

	w.Header().Set("Content-Type", "application/xml")
	_ = xml.NewEncoder(w).Encode(res)
}

func newFakeS3Store(t *testing.T) *S3Store {
	t.Helper()
	fake := &fakeS3{bucket: "clinic-files", objects: make(map[string]fakeObject)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := NewS3Store(context.Background(), S3Config{
		Bucket:          "clinic-files",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		Prefix:          "/attachments/",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	return s
}

func TestS3StorePrefix(t *testing.T) {
	t.Parallel()
	s := newFakeS3Store(t)
	assert.Equal(t, "attachments/", s.prefix)
	assert.Equal(t, "attachments/patient_1/a.txt", s.objectKey("patient_1/a.txt"))
	assert.Equal(t, DriverS3, s.Driver())
}

func TestNormalizePrefix(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", normalizePrefix(""))
	assert.Equal(t, "", normalizePrefix("/"))
	assert.Equal(t, "a/b/", normalizePrefix("/a/b"))
}
