package datastore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/patientkeeper/internal/conf"
	"github.com/clinicdesk/patientkeeper/internal/datastore/entities"
	"github.com/clinicdesk/patientkeeper/internal/datastore/repository"
	"github.com/clinicdesk/patientkeeper/internal/logger"
)

func strPtr(s string) *string { return &s }

func openTestStore(t *testing.T) (Manager, *Repositories) {
	t.Helper()
	m, err := Open(&conf.DatabaseSettings{
		Type:   conf.DatabaseSQLite,
		SQLite: conf.SQLiteSettings{Path: filepath.Join(t.TempDir(), "db", "patients.db")},
	}, logger.NewSlogLogger(nil, logger.LogLevelError, nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, NewRepositories(m)
}

func createPatient(t *testing.T, repos *Repositories, nationalID, name string) *entities.Patient {
	t.Helper()
	p := &entities.Patient{NationalID: nationalID, Name: name, RegistrationDate: time.Now().UTC()}
	require.NoError(t, repos.Patients.Create(context.Background(), p))
	require.NotZero(t, p.ID)
	return p
}

func TestSQLiteManagerBasics(t *testing.T) {
	m, _ := openTestStore(t)
	assert.False(t, m.IsMySQL())
	assert.FileExists(t, m.Path())
	assert.True(t, m.DB().Migrator().HasTable(&entities.Patient{}))
	assert.True(t, m.DB().Migrator().HasTable(&entities.PatientFileBlob{}))
}

func TestOpenRejectsUnknownType(t *testing.T) {
	_, err := Open(&conf.DatabaseSettings{Type: "oracle"}, nil)
	require.Error(t, err)
}

func TestPatientRepository(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestStore(t)

	created := createPatient(t, repos, "NID-1", "Zoe Zimmer")
	createPatient(t, repos, "NID-2", "Adam Abbott")

	t.Run("duplicate national id", func(t *testing.T) {
		err := repos.Patients.Create(ctx, &entities.Patient{NationalID: "NID-1", Name: "Other", RegistrationDate: time.Now()})
		require.ErrorIs(t, err, repository.ErrDuplicateKey)
		count, err := repos.Patients.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("get by national id", func(t *testing.T) {
		got, err := repos.Patients.GetByNationalID(ctx, "NID-1")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "Zoe Zimmer", got.Name)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repos.Patients.GetByNationalID(ctx, "missing")
		require.ErrorIs(t, err, repository.ErrPatientNotFound)
		_, err = repos.Patients.GetByID(ctx, 9999)
		require.ErrorIs(t, err, repository.ErrPatientNotFound)
	})

	t.Run("list ordered by name", func(t *testing.T) {
		list, err := repos.Patients.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "Adam Abbott", list[0].Name)
		assert.Equal(t, "Zoe Zimmer", list[1].Name)
	})
}

func TestMedicalRecordRepository(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestStore(t)
	p := createPatient(t, repos, "NID-1", "Pat")

	now := time.Now().UTC().Truncate(time.Second)
	first := &entities.MedicalRecord{PatientID: p.ID, RecordDate: now, Notes: strPtr("first")}
	second := &entities.MedicalRecord{PatientID: p.ID, RecordDate: now, Notes: strPtr("second")}
	older := &entities.MedicalRecord{PatientID: p.ID, RecordDate: now.Add(-time.Hour), Notes: strPtr("older")}
	for _, r := range []*entities.MedicalRecord{first, second, older} {
		require.NoError(t, repos.MedicalRecords.Create(ctx, r))
	}

	list, err := repos.MedicalRecords.ListByPatient(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "second", *list[0].Notes)
	assert.Equal(t, "first", *list[1].Notes)
	assert.Equal(t, "older", *list[2].Notes)

	empty, err := repos.MedicalRecords.ListByPatient(ctx, p.ID+100)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	err = repos.MedicalRecords.Create(ctx, &entities.MedicalRecord{PatientID: 4242, RecordDate: now})
	require.ErrorIs(t, err, repository.ErrForeignKey)
}

func TestPatientFileRepository(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestStore(t)
	p := createPatient(t, repos, "NID-1", "Pat")

	now := time.Now().UTC()
	a := &entities.PatientFile{PatientID: p.ID, FileName: "a.png", FilePath: "patient_1/a.png", UploadDate: now.Add(-time.Minute)}
	b := &entities.PatientFile{PatientID: p.ID, FileName: "b.pdf", FilePath: "patient_1/b.pdf", UploadDate: now}
	require.NoError(t, repos.Files.Create(ctx, a))
	require.NoError(t, repos.Files.Create(ctx, b))

	err := repos.Files.Create(ctx, &entities.PatientFile{PatientID: p.ID, FileName: "a.png", FilePath: "patient_1/a.png", UploadDate: now})
	require.ErrorIs(t, err, repository.ErrDuplicateKey)

	list, err := repos.Files.ListByPatient(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b.pdf", list[0].FileName)

	got, err := repos.Files.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "patient_1/a.png", got.FilePath)

	_, err = repos.Files.GetByID(ctx, 999)
	require.ErrorIs(t, err, repository.ErrFileNotFound)

	all, err := repos.Files.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	err = repos.Files.Create(ctx, &entities.PatientFile{PatientID: 777, FileName: "x", FilePath: "patient_777/x", UploadDate: now})
	require.ErrorIs(t, err, repository.ErrForeignKey)
}

func TestFileBlobRepository(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestStore(t)

	blob := &entities.PatientFileBlob{Key: "patient_1/scan.png", Data: []byte("png-bytes"), Size: 9, ContentType: "image/png"}
	require.NoError(t, repos.Blobs.Create(ctx, blob))
	require.NoError(t, repos.Blobs.Create(ctx, &entities.PatientFileBlob{Key: "patient_10/other.pdf", Data: []byte("pdf"), Size: 3}))

	err := repos.Blobs.Create(ctx, &entities.PatientFileBlob{Key: "patient_1/scan.png", Data: []byte("x"), Size: 1})
	require.ErrorIs(t, err, repository.ErrDuplicateKey)

	got, err := repos.Blobs.Get(ctx, "patient_1/scan.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), got.Data)

	head, err := repos.Blobs.Head(ctx, "patient_1/scan.png")
	require.NoError(t, err)
	assert.Nil(t, head.Data)
	assert.Equal(t, int64(9), head.Size)

	keys, err := repos.Blobs.ListKeys(ctx, "patient_1/")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "patient_1/scan.png", keys[0].Key)

	require.NoError(t, repos.Blobs.Delete(ctx, "patient_1/scan.png"))
	require.ErrorIs(t, repos.Blobs.Delete(ctx, "patient_1/scan.png"), repository.ErrBlobNotFound)
	_, err = repos.Blobs.Get(ctx, "patient_1/scan.png")
	require.ErrorIs(t, err, repository.ErrBlobNotFound)
}

func TestMySQLConfigDSN(t *testing.T) {
	cfg := &MySQLConfig{Host: "db.local", Port: "3306", Username: "clinic", Password: "p@ss:word", Database: "records"}
	dsn := cfg.DSN()
	assert.Contains(t, dsn, "clinic:p@ss:word@tcp(db.local:3306)/records")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}
