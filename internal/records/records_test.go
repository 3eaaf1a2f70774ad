package records

import (
	"context"
	"io"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/clinicdesk/patientkeeper/internal/blobstore"
	"github.com/clinicdesk/patientkeeper/internal/conf"
	"github.com/clinicdesk/patientkeeper/internal/datastore"
	"github.com/clinicdesk/patientkeeper/internal/errors"
	"github.com/clinicdesk/patientkeeper/internal/logger"
	"github.com/clinicdesk/patientkeeper/internal/observability/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	svc      *Service
	repos    *datastore.Repositories
	blobs    blobstore.Store
	clock    *fakeClock
	recorder *metrics.TestRecorder
}

func openRepos(t *testing.T) *datastore.Repositories {
	t.Helper()
	m, err := datastore.Open(&conf.DatabaseSettings{
		Type:   conf.DatabaseSQLite,
		SQLite: conf.SQLiteSettings{Path: filepath.Join(t.TempDir(), "patients.db")},
	}, logger.NewSlogLogger(nil, logger.LogLevelError, nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return datastore.NewRepositories(m)
}

func newFSBlobs(t *testing.T) *blobstore.FSStore {
	t.Helper()
	s, err := blobstore.NewFSStore(filepath.Join(t.TempDir(), "patient_files"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestEnv(t *testing.T, blobs blobstore.Store, cfg Config) *testEnv {
	t.Helper()
	env := &testEnv{
		repos:    openRepos(t),
		blobs:    blobs,
		clock:    newFakeClock(),
		recorder: metrics.NewTestRecorder(),
	}
	env.svc = New(env.repos, blobs, cfg,
		WithLogger(logger.NewSlogLogger(nil, logger.LogLevelError, nil)),
		WithRecorder(env.recorder),
		WithClock(env.clock.Now))
	return env
}

func (e *testEnv) addPatient(t *testing.T, nationalID, name string) uint {
	t.Helper()
	id, err := e.svc.AddPatient(context.Background(), NewPatient{NationalID: nationalID, Name: name})
	require.NoError(t, err)
	require.NotZero(t, id)
	return id
}

func float(v float64) *float64 { return &v }

func TestAddAndGetPatient(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, blobstore.NewMemoryStore(), Config{})
	ctx := context.Background()

	id, err := env.svc.AddPatient(ctx, NewPatient{
		NationalID:  "29801011234567",
		Name:        "Amal Hassan",
		DateOfBirth: "1998-01-01",
		Gender:      "Female",
		Phone:       "0100 000 0000",
		Address:     "12 Nile St",
	})
	require.NoError(t, err)

	p, err := env.svc.GetPatientByNationalID(ctx, "29801011234567")
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.Equal(t, "Amal Hassan", p.Name)
	assert.Equal(t, "1998-01-01", p.DateOfBirth)
	assert.Equal(t, "female", p.Gender, "gender is normalized to lower case")
	assert.Equal(t, "0100 000 0000", p.Phone)
	assert.Equal(t, "12 Nile St", p.Address)
	assert.True(t, env.clock.Now().Equal(p.RegistrationDate))
	assert.Equal(t, 1, env.recorder.GetOperationCount(metrics.OpAddPatient, metrics.StatusSuccess))
}

func TestAddPatientDuplicateNationalID(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, blobstore.NewMemoryStore(), Config{})
	ctx := context.Background()

	env.addPatient(t, "A-1", "First")

	_, err := env.svc.AddPatient(ctx, NewPatient{NationalID: "A-1", Name: "Second"})
	require.ErrorIs(t, err, ErrDuplicateKey)
	assert.NotErrorIs(t, err, ErrStorage)
	assert.Equal(t, KindDuplicateKey, KindOf(err))
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))

	n, err := env.svc.CountPatients(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "patient count is unchanged")
}

func TestAddPatientValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, blobstore.NewMemoryStore(), Config{})

	tests := []struct {
		name string
		in   NewPatient
	}{
		{"missing national id", NewPatient{Name: "x"}},
		{"blank national id", NewPatient{NationalID: "   ", Name: "x"}},
		{"missing name", NewPatient{NationalID: "1"}},
		{"unknown gender", NewPatient{NationalID: "1", Name: "x", Gender: "unknown"}},
		{"bad date of birth", NewPatient{NationalID: "1", Name: "x", DateOfBirth: "01/02/1990"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.AddPatient(context.Background(), tt.in)
			require.ErrorIs(t, err, ErrInvalidInput)
			assert.Equal(t, KindInvalidInput, KindOf(err))
		})
	}
}

func TestGetPatientNotFound(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, blobstore.NewMemoryStore(), Config{})

	_, err := env.svc.GetPatientByNationalID(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrStorage)
	assert.True(t, errors.IsNotFound(err))

	_, err = env.svc.GetPatient(context.Background(), 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetPatientUsesCache(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, blobstore.NewMemoryStore(), Config{CacheTTL: time.Minute})
	ctx := context.Background()
	id := env.addPatient(t, "C-1", "Cached")

	first, err := env.svc.GetPatientByNationalID(ctx, "C-1")
	require.NoError(t, err)
	second, err := env.svc.GetPatientByNationalID(ctx, "C-1")
	require.NoError(t, err)
	byID, err := env.svc.GetPatient(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first, byID)
	assert.NotSame(t, first, second, "callers get copies")
	assert.Equal(t, 1, env.recorder.GetOperationCount(metrics.OpPatientCache, metrics.StatusMiss))
	assert.Equal(t, 2, env.recorder.GetOperationCount(metrics.OpPatientCache, metrics.StatusHit))
}

func TestListPatients(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, blobstore.NewMemoryStore(), Config{})
	ctx := context.Background()

	empty, err := env.svc.ListPatients(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	env.addPatient(t, "3", "Zeinab")
	env.addPatient(t, "1", "Ahmed")
	env.addPatient(t, "2", "Mona")

	list, err := env.svc.ListPatients(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"Ahmed", "Mona", "Zeinab"}, []string{list[0].Name, list[1].Name, list[2].Name})
}

func TestAddObservationNormalizesSentinels(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, blobstore.NewMemoryStore(), Config{})
	ctx := context.Background()
	pid := env.addPatient(t, "O-1", "Obs")

	tests := []struct {
		name            string
		in              NewObservation
		wantGlucose     *float64
		wantTemperature *float64
	}{
		{"zero glucose is absent", NewObservation{GlucoseLevel: float(0)}, nil, nil},
		{"glucose kept exactly", NewObservation{GlucoseLevel: float(55.5)}, float(55.5), nil},
		{"default temperature is absent", NewObservation{Temperature: float(37.0)}, nil, nil},
		{"temperature kept exactly", NewObservation{Temperature: float(38.2)}, nil, float(38.2)},
		{"nothing entered", NewObservation{BloodPressure: "120/80"}, nil, nil},
	}

	for _, tt := range tests {
		id, err := env.svc.AddObservation(ctx, pid, tt.in)
		require.NoError(t, err, tt.name)

		list, err := env.svc.ListObservations(ctx, pid)
		require.NoError(t, err)
		var got *Observation
		for i := range list {
			if list[i].ID == id {
				got = &list[i]
			}
		}
		require.NotNil(t, got, tt.name)
		assert.Equal(t, tt.wantGlucose, got.GlucoseLevel, tt.name)
		assert.Equal(t, tt.wantTemperature, got.Temperature, tt.name)
	}
}

func TestAddObservationValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, blobstore.NewMemoryStore(), Config{})
	pid := env.addPatient(t, "O-2", "Obs")

	_, err := env.svc.AddObservation(context.Background(), pid, NewObservation{GlucoseLevel: float(-1)})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.svc.AddObservation(context.Background(), pid, NewObservation{Temperature: float(50)})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestAddObservationUnknownPatient(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, blobstore.NewMemoryStore(), Config{})

	_, err := env.svc.AddObservation(context.Background(), 4242, NewObservation{Notes: "orphan"})
	require.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, KindStorage, KindOf(err))
}

func TestListObservationsNewestFirst(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, blobstore.NewMemoryStore(), Config{})
	ctx := context.Background()
	pid := env.addPatient(t, "O-3", "Obs")

	empty, err := env.svc.ListObservations(ctx, pid)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	first, err := env.svc.AddObservation(ctx, pid, NewObservation{Notes: "first"})
	require.NoError(t, err)
	second, err := env.svc.AddObservation(ctx, pid, NewObservation{Notes: "same second"})
	require.NoError(t, err)
	env.clock.Advance(time.Hour)
	third, err := env.svc.AddObservation(ctx, pid, NewObservation{Notes: "later"})
	require.NoError(t, err)

	list, err := env.svc.ListObservations(ctx, pid)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []uint{third, second, first}, []uint{list[0].ID, list[1].ID, list[2].ID})
}

func TestEnsurePatientDirectory(t *testing.T) {
	t.Parallel()
	fs := newFSBlobs(t)
	env := newTestEnv(t, fs, Config{})

	dir, ok := env.svc.EnsurePatientDirectory(context.Background(), 5)
	require.True(t, ok)
	assert.Equal(t, "patient_5", dir.Key)
	assert.Equal(t, filepath.Join(fs.Root(), "patient_5"), dir.Path)
	assert.DirExists(t, dir.Path)

	again, ok := env.svc.EnsurePatientDirectory(context.Background(), 5)
	assert.True(t, ok, "already exists is success")
	assert.Equal(t, dir, again)

	memEnv := newTestEnv(t, blobstore.NewMemoryStore(), Config{})
	memDir, ok := memEnv.svc.EnsurePatientDirectory(context.Background(), 5)
	assert.True(t, ok)
	assert.Empty(t, memDir.Path)
}

func TestSaveFileRoundTrip(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, newFSBlobs(t), Config{})
	ctx := context.Background()
	pid := env.addPatient(t, "F-1", "Files")
	payload := []byte("%PDF-1.4 discharge summary")

	saved, err := env.svc.SaveFile(ctx, pid, payload, "summary.PDF", "discharge")
	require.NoError(t, err)
	assert.NotZero(t, saved.FileID)
	assert.Equal(t, "patient_1/20240501093000_summary.PDF", saved.StoredPath)
	assert.Equal(t, int64(len(payload)), saved.Size)
	assert.Empty(t, saved.Warnings)

	got, err := env.svc.ReadFileBytes(ctx, saved.StoredPath)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	files, err := env.svc.ListFiles(ctx, pid)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, saved.FileID, files[0].ID)
	assert.Equal(t, "summary.PDF", files[0].FileName)
	assert.Equal(t, saved.StoredPath, files[0].StoredPath)
	assert.Equal(t, "pdf", files[0].FileType)
	assert.Equal(t, FileKindPDF, files[0].Kind)
	assert.Equal(t, "discharge", files[0].Description)
	assert.True(t, files[0].Exists)

	meta, err := env.svc.GetFile(ctx, saved.FileID)
	require.NoError(t, err)
	assert.Equal(t, files[0], *meta)
}

func TestSaveFileSameNameDistinctSeconds(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, newFSBlobs(t), Config{})
	ctx := context.Background()
	pid := env.addPatient(t, "F-2", "Files")

	a, err := env.svc.SaveFile(ctx, pid, []byte("one"), "scan.png", "")
	require.NoError(t, err)
	env.clock.Advance(2 * time.Second)
	b, err := env.svc.SaveFile(ctx, pid, []byte("two"), "scan.png", "")
	require.NoError(t, err)

	assert.NotEqual(t, a.StoredPath, b.StoredPath)
	assert.NotEqual(t, a.FileID, b.FileID)

	gotA, err := env.svc.ReadFileBytes(ctx, a.StoredPath)
	require.NoError(t, err)
	assert.Equal(t, "one", string(gotA))

	files, err := env.svc.ListFiles(ctx, pid)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, b.FileID, files[0].ID, "newest first")
}

func TestSaveFileSameSecondCollision(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, newFSBlobs(t), Config{})
	ctx := context.Background()
	pid := env.addPatient(t, "F-3", "Files")

	const uploads = 5
	var wg sync.WaitGroup
	results := make([]*SavedFile, uploads)
	errs := make([]error, uploads)
	for i := range uploads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = env.svc.SaveFile(ctx, pid, []byte{byte('a' + i)}, "photo.jpg", "")
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := range uploads {
		require.NoError(t, errs[i])
		assert.False(t, seen[results[i].StoredPath], "stored paths must be unique")
		seen[results[i].StoredPath] = true
	}
	assert.True(t, seen["patient_1/20240501093000_photo.jpg"])
	assert.True(t, seen["patient_1/20240501093000-1_photo.jpg"])

	for i := range uploads {
		got, err := env.svc.ReadFileBytes(ctx, results[i].StoredPath)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte('a' + i)}, got, "no upload overwrote another")
	}
	assert.Equal(t, 10, env.recorder.GetOperationCount(metrics.OpNameRetry, "collision"))
}

func TestSaveFileManySameNameUploadsInOneSecond(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, newFSBlobs(t), Config{NameRetries: 3})
	ctx := context.Background()
	pid := env.addPatient(t, "F-4", "Files")

	// the clock never moves, so every upload competes for the same stamp
	const uploads = 13
	seen := make(map[string]bool)
	for i := range uploads {
		saved, err := env.svc.SaveFile(ctx, pid, []byte{byte('a' + i)}, "scan.pdf", "")
		require.NoError(t, err, "upload %d", i+1)
		assert.False(t, seen[saved.StoredPath], "stored paths must be unique")
		seen[saved.StoredPath] = true
		assert.LessOrEqual(t, len(path.Base(saved.StoredPath)), maxStoredNameBytes)
	}
	assert.True(t, seen["patient_1/20240501093000_scan.pdf"])
	assert.True(t, seen["patient_1/20240501093000-3_scan.pdf"])
	assert.False(t, seen["patient_1/20240501093000-4_scan.pdf"], "counter stops at NameRetries")

	files, err := env.svc.ListFiles(ctx, pid)
	require.NoError(t, err)
	require.Len(t, files, uploads)
	for _, f := range files {
		assert.True(t, f.Exists, f.StoredPath)
	}
}

// collidingStore reports every key as taken.
type collidingStore struct {
	*blobstore.MemoryStore
}

func (collidingStore) Put(context.Context, string, io.Reader, blobstore.PutOptions) (blobstore.Info, error) {
	return blobstore.Info{}, blobstore.ErrAlreadyExists
}

func TestSaveFileNameSearchStopsWithContext(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, collidingStore{blobstore.NewMemoryStore()}, Config{NameRetries: 2})
	pid := env.addPatient(t, "F-4b", "Files")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := env.svc.SaveFile(ctx, pid, []byte("x"), "a.txt", "")
	require.ErrorIs(t, err, ErrStorage)

	count, err := env.repos.Files.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSaveFileLongNameFitsStoredName(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, newFSBlobs(t), Config{})
	ctx := context.Background()
	pid := env.addPatient(t, "F-4c", "Files")

	long := strings.Repeat("b", 240) + ".pdf"
	require.Len(t, long, 244)

	saved, err := env.svc.SaveFile(ctx, pid, []byte("pdf"), long, "")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(saved.FileName, ".pdf"))
	assert.LessOrEqual(t, len(path.Base(saved.StoredPath)), maxStoredNameBytes)

	// a second upload in the same second takes a suffixed name and still fits
	again, err := env.svc.SaveFile(ctx, pid, []byte("pdf2"), long, "")
	require.NoError(t, err)
	assert.NotEqual(t, saved.StoredPath, again.StoredPath)
	assert.LessOrEqual(t, len(path.Base(again.StoredPath)), maxStoredNameBytes)

	got, err := env.svc.ReadFileBytes(ctx, again.StoredPath)
	require.NoError(t, err)
	assert.Equal(t, "pdf2", string(got))
}

func TestSaveFileValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, blobstore.NewMemoryStore(), Config{AllowedTypes: []string{"pdf", ".PNG"}, MaxFileSize: 8})
	ctx := context.Background()
	pid := env.addPatient(t, "F-5", "Files")

	_, err := env.svc.SaveFile(ctx, pid, []byte("x"), "virus.exe", "")
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.svc.SaveFile(ctx, pid, []byte("0123456789"), "big.pdf", "")
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.svc.SaveFile(ctx, pid, []byte("x"), "  ", "")
	require.ErrorIs(t, err, ErrInvalidInput)

	saved, err := env.svc.SaveFile(ctx, pid, []byte("png"), `C:\Users\doc\xray.png`, "")
	require.NoError(t, err)
	assert.Equal(t, "xray.png", saved.FileName)

	_, err = env.svc.SaveFile(ctx, 777, []byte("x"), "a.pdf", "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSanitizeFileName(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"report.pdf":           "report.pdf",
		"../../etc/passwd":     "passwd",
		`C:\fakepath\scan.JPG`: "scan.JPG",
		" spaced name.docx ":   "spaced name.docx",
		"dir/":                 "dir",
		"tab\tname.txt":        "tabname.txt",
	}
	for in, want := range tests {
		got, err := sanitizeFileName(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", ".", "..", "/", `\`, "x." + strings.Repeat("e", 250)} {
		_, err := sanitizeFileName(bad)
		require.ErrorIs(t, err, ErrInvalidInput, bad)
	}

	got, err := sanitizeFileName(strings.Repeat("é", 200) + ".jpeg")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got), maxFileNameBytes)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "é.jpeg"))
}

// sizeLyingStore reports a different size from Head than what was written.
type sizeLyingStore struct {
	*blobstore.MemoryStore
}

func (s sizeLyingStore) Head(ctx context.Context, key string) (blobstore.Info, error) {
	info, err := s.MemoryStore.Head(ctx, key)
	info.Size--
	return info, err
}

func TestSaveFileSizeMismatchIsSoftWarning(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, sizeLyingStore{blobstore.NewMemoryStore()}, Config{})
	pid := env.addPatient(t, "F-6", "Files")

	saved, err := env.svc.SaveFile(context.Background(), pid, []byte("12345"), "a.txt", "")
	require.NoError(t, err)
	require.Len(t, saved.Warnings, 1)
	assert.Equal(t, WarningSizeMismatch, saved.Warnings[0].Kind)
	assert.Equal(t, int64(5), saved.Warnings[0].Expected)
	assert.Equal(t, int64(4), saved.Warnings[0].Actual)
	assert.NotZero(t, saved.FileID)
	assert.Equal(t, 1, env.recorder.GetErrorCount(metrics.OpSaveFile, string(WarningSizeMismatch)))
}

// vanishingStore accepts writes but never finds them afterwards.
type vanishingStore struct {
	*blobstore.MemoryStore
}

func (s vanishingStore) Head(_ context.Context, key string) (blobstore.Info, error) {
	return blobstore.Info{}, blobstore.ErrNotFound
}

func TestSaveFileUnconfirmedWriteRecordsNothing(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, vanishingStore{blobstore.NewMemoryStore()}, Config{})
	ctx := context.Background()
	pid := env.addPatient(t, "F-7", "Files")

	_, err := env.svc.SaveFile(ctx, pid, []byte("lost"), "a.txt", "")
	require.ErrorIs(t, err, ErrStorage)

	n, err := env.repos.Files.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "no metadata row without confirmed bytes")
}

func TestSaveFileMetadataFailureLeavesOrphan(t *testing.T) {
	t.Parallel()
	blobs := blobstore.NewMemoryStore()
	env := newTestEnv(t, blobs, Config{})
	ctx := context.Background()
	pid := env.addPatient(t, "F-8", "Files")

	// occupy the row-level unique path so the insert fails after the write
	_, err := env.svc.SaveFile(ctx, pid, []byte("first"), "a.txt", "")
	require.NoError(t, err)
	_, err = blobs.Delete(ctx, "patient_1/20240501093000_a.txt")
	require.NoError(t, err)

	_, err = env.svc.SaveFile(ctx, pid, []byte("second"), "a.txt", "")
	require.ErrorIs(t, err, ErrStorage)

	orphan, err := blobstore.ReadAll(ctx, blobs, "patient_1/20240501093000_a.txt")
	require.NoError(t, err)
	assert.Equal(t, "second", string(orphan), "bytes stay behind without rollback")
	assert.Equal(t, 1, env.recorder.GetErrorCount(metrics.OpSaveFile, string(WarningOrphanBlob)))
}

func TestReadFileBytesNotFound(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, newFSBlobs(t), Config{})
	ctx := context.Background()
	pid := env.addPatient(t, "R-1", "Reader")

	_, err := env.svc.ReadFileBytes(ctx, "patient_1/never_written.pdf")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = env.svc.ReadFileBytes(ctx, "../../etc/passwd")
	require.ErrorIs(t, err, ErrNotFound)

	saved, err := env.svc.SaveFile(ctx, pid, []byte("bytes"), "a.txt", "")
	require.NoError(t, err)
	_, err = env.blobs.Delete(ctx, saved.StoredPath)
	require.NoError(t, err)

	_, err = env.svc.ReadFileBytes(ctx, saved.StoredPath)
	require.ErrorIs(t, err, ErrNotFound)

	files, err := env.svc.ListFiles(ctx, pid)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.False(t, files[0].Exists, "row survives, existence flag drops")
}

func TestListFilesEmpty(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, blobstore.NewMemoryStore(), Config{})
	pid := env.addPatient(t, "L-1", "Lister")

	files, err := env.svc.ListFiles(context.Background(), pid)
	require.NoError(t, err)
	assert.NotNil(t, files)
	assert.Empty(t, files)
}

func TestClassifyFile(t *testing.T) {
	t.Parallel()
	assert.Equal(t, FileKindImage, ClassifyFile("JPG"))
	assert.Equal(t, FileKindImage, ClassifyFile("png"))
	assert.Equal(t, FileKindPDF, ClassifyFile("pdf"))
	assert.Equal(t, FileKindDocument, ClassifyFile("docx"))
	assert.Equal(t, FileKindOther, ClassifyFile(""))
	assert.Equal(t, FileKindOther, ClassifyFile("zip"))
}

func TestDescribe(t *testing.T) {
	t.Parallel()
	fs := newFSBlobs(t)
	env := newTestEnv(t, fs, Config{})
	ctx := context.Background()

	pid := env.addPatient(t, "D-1", "Describe")
	_, err := env.svc.AddObservation(ctx, pid, NewObservation{BloodPressure: "110/70"})
	require.NoError(t, err)

	kept, err := env.svc.SaveFile(ctx, pid, []byte("kept"), "kept.pdf", "")
	require.NoError(t, err)
	lost, err := env.svc.SaveFile(ctx, pid, []byte("lost"), "lost.pdf", "")
	require.NoError(t, err)
	_, err = fs.Delete(ctx, lost.StoredPath)
	require.NoError(t, err)
	_, err = fs.Put(ctx, "patient_1/stray.bin", strings.NewReader("stray"), blobstore.PutOptions{})
	require.NoError(t, err)

	snap, err := env.svc.Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fs", snap.BlobDriver)
	assert.Equal(t, int64(1), snap.Patients)
	assert.Equal(t, int64(1), snap.Observations)
	assert.Equal(t, int64(2), snap.Files)
	assert.Equal(t, 1, snap.MissingCount())

	exists := make(map[string]bool)
	for _, c := range snap.FileChecks {
		exists[c.StoredPath] = c.Exists
	}
	assert.True(t, exists[kept.StoredPath])
	assert.False(t, exists[lost.StoredPath])

	assert.ElementsMatch(t, []IntegrityWarning{
		{Kind: WarningMissingBlob, Key: lost.StoredPath},
		{Kind: WarningOrphanBlob, Key: "patient_1/stray.bin", Actual: 5},
	}, snap.Warnings)

	require.NotNil(t, snap.Disk)
	assert.Equal(t, fs.Root(), snap.Disk.Path)
	assert.NotZero(t, snap.Disk.TotalBytes)
}

func TestDescribeWithoutLocalRoot(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, blobstore.NewMemoryStore(), Config{})

	snap, err := env.svc.Describe(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap.Disk)
	assert.Empty(t, snap.FileChecks)
	assert.Empty(t, snap.Warnings)
}

func TestKindOfForeignErrors(t *testing.T) {
	t.Parallel()
	assert.Equal(t, KindStorage, KindOf(errors.NewStd("boom")))
	assert.Equal(t, KindNotFound, KindOf(notFoundError("op", "gone")))
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()
	settings := &conf.Settings{}
	settings.Files.AllowedTypes = []string{"pdf"}
	settings.Files.MaxUploadSizeMB = 2
	settings.Files.NameRetries = 3
	settings.Cache.Enabled = true
	settings.Cache.TTL = time.Minute

	cfg := ConfigFromSettings(settings)
	assert.Equal(t, []string{"pdf"}, cfg.AllowedTypes)
	assert.Equal(t, int64(2<<20), cfg.MaxFileSize)
	assert.Equal(t, 3, cfg.NameRetries)
	assert.Equal(t, time.Minute, cfg.CacheTTL)

	settings.Cache.Enabled = false
	assert.Zero(t, ConfigFromSettings(settings).CacheTTL)
}
