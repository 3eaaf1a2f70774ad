package records

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sync/errgroup"

	"github.com/clinicdesk/patientkeeper/internal/blobstore"
	"github.com/clinicdesk/patientkeeper/internal/errors"
	"github.com/clinicdesk/patientkeeper/internal/logger"
	"github.com/clinicdesk/patientkeeper/internal/observability/metrics"
)

// FileCheck is the cross-check of one file row against the blob store.
type FileCheck struct {
	FileID     uint   `json:"file_id"`
	PatientID  uint   `json:"patient_id"`
	FileName   string `json:"file_name"`
	StoredPath string `json:"stored_path"`
	Exists     bool   `json:"exists"`
	Size       int64  `json:"size_bytes,omitempty"`
	CheckError string `json:"check_error,omitempty"`
}

// DiskUsage reports space on the filesystem holding the blob root.
type DiskUsage struct {
	Path       string  `json:"path"`
	TotalBytes uint64  `json:"total_bytes"`
	FreeBytes  uint64  `json:"free_bytes"`
	UsedPct    float64 `json:"used_percent"`
}

// Snapshot is a point-in-time description of stored state for operators.
type Snapshot struct {
	GeneratedAt  time.Time          `json:"generated_at"`
	BlobDriver   string             `json:"blob_driver"`
	Patients     int64              `json:"patients"`
	Observations int64              `json:"observations"`
	Files        int64              `json:"files"`
	FileChecks   []FileCheck        `json:"file_checks"`
	Warnings     []IntegrityWarning `json:"warnings"`
	Disk         *DiskUsage         `json:"disk,omitempty"`
}

// MissingCount returns the number of rows whose bytes are gone.
func (s *Snapshot) MissingCount() int {
	n := 0
	for _, c := range s.FileChecks {
		if !c.Exists && c.CheckError == "" {
			n++
		}
	}
	return n
}

// Describe counts rows, checks every file row against the blob store and
// lists blobs that no row references. Existence checks run concurrently.
func (s *Service) Describe(ctx context.Context) (snap *Snapshot, err error) {
	start := time.Now()
	defer func() { s.observe(metrics.OpDescribe, start, err) }()

	snap = &Snapshot{
		GeneratedAt: s.now(),
		BlobDriver:  string(s.blobs.Driver()),
		FileChecks:  make([]FileCheck, 0),
		Warnings:    make([]IntegrityWarning, 0),
	}

	if snap.Patients, err = s.repos.Patients.Count(ctx); err != nil {
		return nil, storageError("describe", "failed to count patients", err)
	}
	if snap.Observations, err = s.repos.MedicalRecords.Count(ctx); err != nil {
		return nil, storageError("describe", "failed to count observations", err)
	}

	rows, err := s.repos.Files.ListAll(ctx)
	if err != nil {
		return nil, storageError("describe", "failed to list files", err)
	}
	snap.Files = int64(len(rows))

	checks := make([]FileCheck, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(describeWorkers)
	for i, r := range rows {
		checks[i] = FileCheck{FileID: r.ID, PatientID: r.PatientID, FileName: r.FileName, StoredPath: r.FilePath}
		g.Go(func() error {
			info, err := s.blobs.Head(gctx, r.FilePath)
			switch {
			case err == nil:
				checks[i].Exists = true
				checks[i].Size = info.Size
			case errors.Is(err, blobstore.ErrNotFound):
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				checks[i].CheckError = err.Error()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storageError("describe", "file checks interrupted", err)
	}
	snap.FileChecks = checks

	recorded := make(map[string]struct{}, len(rows))
	for _, c := range checks {
		recorded[c.StoredPath] = struct{}{}
		if !c.Exists && c.CheckError == "" {
			snap.Warnings = append(snap.Warnings, IntegrityWarning{Kind: WarningMissingBlob, Key: c.StoredPath})
		}
	}

	blobs, err := s.blobs.List(ctx, "")
	if err != nil {
		return nil, storageError("describe", "failed to list blob store", err)
	}
	for _, b := range blobs {
		if _, ok := recorded[b.Key]; !ok {
			snap.Warnings = append(snap.Warnings, IntegrityWarning{Kind: WarningOrphanBlob, Key: b.Key, Actual: b.Size})
		}
	}

	snap.Disk = s.diskUsage(ctx)

	if len(snap.Warnings) > 0 {
		s.log.Warn("integrity warnings found",
			logger.Int("warnings", len(snap.Warnings)),
			logger.Int("missing", snap.MissingCount()))
	}
	return snap, nil
}

func (s *Service) diskUsage(ctx context.Context) *DiskUsage {
	rooted, ok := s.blobs.(blobstore.Rooted)
	if !ok {
		return nil
	}
	usage, err := disk.UsageWithContext(ctx, rooted.Root())
	if err != nil {
		s.log.Debug("disk usage unavailable",
			logger.String("path", rooted.Root()),
			logger.Error(err))
		return nil
	}
	return &DiskUsage{
		Path:       rooted.Root(),
		TotalBytes: usage.Total,
		FreeBytes:  usage.Free,
		UsedPct:    usage.UsedPercent,
	}
}
