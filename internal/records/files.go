package records

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/clinicdesk/patientkeeper/internal/blobstore"
	"github.com/clinicdesk/patientkeeper/internal/datastore/entities"
	"github.com/clinicdesk/patientkeeper/internal/datastore/repository"
	"github.com/clinicdesk/patientkeeper/internal/errors"
	"github.com/clinicdesk/patientkeeper/internal/logger"
	"github.com/clinicdesk/patientkeeper/internal/observability/metrics"
)

// storedNameLayout is the second-resolution timestamp prefixed to stored names.
const storedNameLayout = "20060102150405"

const (
	// maxStoredNameBytes is the usual file-system limit for one path element.
	maxStoredNameBytes = 255
	randomSuffixLen    = 12
	// storedNameReserve covers "<stamp>-<suffix>_" for the widest suffix:
	// a decimal int counter or a random suffix.
	storedNameReserve = len(storedNameLayout) + 1 + 20 + 1
	maxFileNameBytes  = maxStoredNameBytes - storedNameReserve
)

// FileKind groups file types for preview decisions.
type FileKind string

const (
	FileKindImage    FileKind = "image"
	FileKindPDF      FileKind = "pdf"
	FileKindDocument FileKind = "document"
	FileKindOther    FileKind = "other"
)

// ClassifyFile maps a file type (extension without dot) to a FileKind.
func ClassifyFile(fileType string) FileKind {
	switch strings.ToLower(fileType) {
	case "jpg", "jpeg", "png", "gif":
		return FileKindImage
	case "pdf":
		return FileKindPDF
	case "doc", "docx", "odt", "rtf", "txt":
		return FileKindDocument
	default:
		return FileKindOther
	}
}

// Directory identifies a patient's area of the blob store.
type Directory struct {
	Key  string `json:"key"`            // key prefix, e.g. "patient_12"
	Path string `json:"path,omitempty"` // local directory, only for stores with real directories
}

// SavedFile is the result of SaveFile.
type SavedFile struct {
	FileID     uint               `json:"file_id"`
	StoredPath string             `json:"stored_path"`
	FileName   string             `json:"file_name"`
	Size       int64              `json:"size_bytes"`
	Warnings   []IntegrityWarning `json:"warnings,omitempty"`
}

// FileMetadata describes an attachment. Exists reflects the blob store at
// listing time; rows are never cleaned up when bytes go missing.
type FileMetadata struct {
	ID          uint      `json:"id"`
	PatientID   uint      `json:"patient_id"`
	FileName    string    `json:"file_name"`
	StoredPath  string    `json:"stored_path"`
	UploadDate  time.Time `json:"upload_date"`
	FileType    string    `json:"file_type,omitempty"`
	Description string    `json:"description,omitempty"`
	Kind        FileKind  `json:"kind"`
	Exists      bool      `json:"exists"`
	Size        int64     `json:"size_bytes,omitempty"`
}

// PatientDirKey returns the blob key prefix holding a patient's files.
func PatientDirKey(patientID uint) string {
	return "patient_" + strconv.FormatUint(uint64(patientID), 10)
}

// EnsurePatientDirectory creates the patient's directory if the store has
// directories. It never fails; the boolean reports whether the directory
// is present. Stores without directories always report true.
func (s *Service) EnsurePatientDirectory(ctx context.Context, patientID uint) (Directory, bool) {
	dir := Directory{Key: PatientDirKey(patientID)}

	maker, ok := s.blobs.(blobstore.DirectoryMaker)
	if !ok {
		return dir, true
	}

	p, err := maker.EnsureDir(ctx, dir.Key)
	if err != nil {
		s.log.Warn("patient directory unavailable",
			logger.Int("patient_id", int(patientID)),
			logger.Error(err))
		return dir, false
	}
	dir.Path = p
	return dir, true
}

// SaveFile stores data as a new attachment of patientID.
//
// Bytes are written first under a unique stored name, then confirmed with
// Head, and only then is the metadata row inserted. If the insert fails the
// bytes stay behind as an orphan; this is logged and reported as ErrStorage,
// and no rollback is attempted.
func (s *Service) SaveFile(ctx context.Context, patientID uint, data []byte, originalName, description string) (saved *SavedFile, err error) {
	start := time.Now()
	defer func() { s.observe(metrics.OpSaveFile, start, err) }()

	name, err := sanitizeFileName(originalName)
	if err != nil {
		return nil, err
	}
	fileType := fileTypeOf(name)
	if err := s.checkUpload(fileType, int64(len(data))); err != nil {
		return nil, err
	}

	if _, err := s.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}

	dir, ok := s.EnsurePatientDirectory(ctx, patientID)
	if !ok {
		s.log.Debug("writing without a materialized patient directory",
			logger.Int("patient_id", int(patientID)))
	}

	key, err := s.putUnique(ctx, patientID, dir.Key, name, data)
	if err != nil {
		return nil, err
	}

	// existence check after write, not just absence of a write error
	info, err := s.blobs.Head(ctx, key)
	if err != nil {
		s.log.Error("file missing right after write",
			logger.String("key", key),
			logger.Error(err))
		return nil, storageError("save_file", "file could not be confirmed on the blob store", err)
	}

	saved = &SavedFile{StoredPath: key, FileName: name, Size: info.Size}
	if info.Size != int64(len(data)) {
		w := IntegrityWarning{Kind: WarningSizeMismatch, Key: key, Expected: int64(len(data)), Actual: info.Size}
		saved.Warnings = append(saved.Warnings, w)
		s.metrics.RecordError(metrics.OpSaveFile, string(WarningSizeMismatch))
		s.log.Warn("size mismatch after write",
			logger.String("key", key),
			logger.Int64("expected_bytes", w.Expected),
			logger.Int64("actual_bytes", w.Actual))
	}

	row := &entities.PatientFile{
		PatientID:   patientID,
		FileName:    name,
		FilePath:    key,
		UploadDate:  s.now(),
		FileType:    optional(fileType),
		Description: optional(description),
	}
	if err := s.repos.Files.Create(ctx, row); err != nil {
		s.metrics.RecordError(metrics.OpSaveFile, string(WarningOrphanBlob))
		s.log.Warn("metadata insert failed, blob left orphaned",
			logger.String("key", key),
			logger.Int("patient_id", int(patientID)),
			logger.Error(err))
		return nil, storageError("save_file", fmt.Sprintf("file stored as %s but metadata insert failed", key), err)
	}

	saved.FileID = row.ID
	s.log.Info("file saved",
		logger.Int("patient_id", int(patientID)),
		logger.Int("file_id", int(row.ID)),
		logger.String("key", key),
		logger.Int64("size_bytes", info.Size))
	return saved, nil
}

// putUnique writes data under the first free stored name. Name generation is
// serialized per patient; the create-only Put still guards against other
// processes sharing the store. Counter suffixes are tried first, then random
// suffixes until a name is free or ctx ends.
func (s *Service) putUnique(ctx context.Context, patientID uint, dirKey, name string, data []byte) (string, error) {
	mu := s.patientLock(patientID)
	mu.Lock()
	defer mu.Unlock()

	stamp := s.now().Format(storedNameLayout)
	opts := blobstore.PutOptions{ContentType: blobstore.ContentTypeFor(name)}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", storageError("save_file",
				fmt.Sprintf("no free stored name for %q after %d attempts", name, attempt), err)
		}

		suffix := ""
		switch {
		case attempt == 0:
		case attempt <= s.nameRetries:
			suffix = strconv.Itoa(attempt)
		default:
			suffix = randomSuffix()
		}

		key := path.Join(dirKey, storedName(stamp, suffix, name))
		_, err := s.blobs.Put(ctx, key, bytes.NewReader(data), opts)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, blobstore.ErrAlreadyExists) {
			s.log.Error("failed to write file",
				logger.String("key", key),
				logger.Error(err))
			return "", storageError("save_file", "failed to write file to the blob store", err)
		}
		s.metrics.RecordOperation(metrics.OpNameRetry, "collision")
		s.log.Debug("stored name taken, retrying",
			logger.String("key", key),
			logger.Int("attempt", attempt+1))
	}
}

// storedName builds "<stamp>_<name>", or "<stamp>-<suffix>_<name>" when a
// suffix is given.
func storedName(stamp, suffix, name string) string {
	if suffix == "" {
		return stamp + "_" + name
	}
	return stamp + "-" + suffix + "_" + name
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:randomSuffixLen]
}

func (s *Service) checkUpload(fileType string, size int64) error {
	if s.allowedTypes != nil {
		if _, ok := s.allowedTypes[fileType]; !ok {
			return invalidInputError("save_file", fmt.Sprintf("file type %q is not allowed", fileType))
		}
	}
	if s.maxFileSize > 0 && size > s.maxFileSize {
		return invalidInputError("save_file",
			fmt.Sprintf("file of %d bytes exceeds the %d byte limit", size, s.maxFileSize))
	}
	return nil
}

// sanitizeFileName reduces an uploaded name to its base name. Both slash
// styles are treated as separators since browsers on Windows may send full paths.
// Long names are shortened so the stored name still fits one path element.
func sanitizeFileName(original string) (string, error) {
	name := strings.ReplaceAll(original, `\`, "/")
	name = strings.TrimSpace(path.Base(name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)

	if name == "" || name == "." || name == ".." || name == "/" {
		return "", invalidInputError("save_file", fmt.Sprintf("file name %q is not usable", original))
	}
	if len(name) <= maxFileNameBytes {
		return name, nil
	}

	ext := path.Ext(name)
	if len(ext) >= maxFileNameBytes/2 {
		return "", invalidInputError("save_file",
			fmt.Sprintf("file extension of %d bytes is too long", len(ext)))
	}
	stem := truncateUTF8(strings.TrimSuffix(name, ext), maxFileNameBytes-len(ext))
	return stem + ext, nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// fileTypeOf returns the lower-cased extension without dot, or "".
func fileTypeOf(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}

// ListFiles returns a patient's attachments, newest first, each with a
// fresh existence flag. Never nil.
func (s *Service) ListFiles(ctx context.Context, patientID uint) (list []FileMetadata, err error) {
	start := time.Now()
	defer func() { s.observe(metrics.OpListFiles, start, err) }()

	rows, err := s.repos.Files.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, storageError("list_files", "failed to list files", err)
	}

	list = make([]FileMetadata, 0, len(rows))
	for _, r := range rows {
		list = append(list, s.fileMetadata(ctx, r))
	}
	return list, nil
}

// GetFile returns one attachment's metadata by ID.
func (s *Service) GetFile(ctx context.Context, fileID uint) (*FileMetadata, error) {
	row, err := s.repos.Files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return nil, notFoundError("get_file", fmt.Sprintf("file %d not found", fileID))
		}
		return nil, storageError("get_file", "failed to look up file", err)
	}
	md := s.fileMetadata(ctx, row)
	return &md, nil
}

func (s *Service) fileMetadata(ctx context.Context, r *entities.PatientFile) FileMetadata {
	md := FileMetadata{
		ID:          r.ID,
		PatientID:   r.PatientID,
		FileName:    r.FileName,
		StoredPath:  r.FilePath,
		UploadDate:  r.UploadDate,
		FileType:    deref(r.FileType),
		Description: deref(r.Description),
	}
	md.Kind = ClassifyFile(md.FileType)

	info, err := s.blobs.Head(ctx, r.FilePath)
	switch {
	case err == nil:
		md.Exists = true
		md.Size = info.Size
	case errors.Is(err, blobstore.ErrNotFound):
		s.log.Debug("recorded file missing from blob store",
			logger.Int("file_id", int(r.ID)),
			logger.String("key", r.FilePath))
	default:
		s.log.Warn("could not check file existence",
			logger.String("key", r.FilePath),
			logger.Error(err))
	}
	return md
}

// ReadFileBytes returns the full contents stored at storedPath.
func (s *Service) ReadFileBytes(ctx context.Context, storedPath string) (data []byte, err error) {
	start := time.Now()
	defer func() { s.observe(metrics.OpReadFile, start, err) }()

	_, rc, err := s.OpenFile(ctx, storedPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data, err = io.ReadAll(rc)
	if err != nil {
		return nil, storageError("read_file", "failed to read file", err)
	}
	return data, nil
}

// OpenFile opens storedPath for streaming. The caller closes the reader.
func (s *Service) OpenFile(ctx context.Context, storedPath string) (blobstore.Info, io.ReadCloser, error) {
	info, rc, err := s.blobs.Get(ctx, storedPath)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) || errors.Is(err, blobstore.ErrInvalidKey) {
			return blobstore.Info{}, nil, notFoundError("read_file", fmt.Sprintf("file %q not found", storedPath))
		}
		return blobstore.Info{}, nil, storageError("read_file", "failed to open file", err)
	}
	return info, rc, nil
}
