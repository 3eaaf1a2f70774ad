package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/clinicdesk/patientkeeper/internal/datastore/entities"
)

// blobMetaColumns are loaded for Head and ListKeys; Data is skipped.
var blobMetaColumns = []string{"id", "blob_key", "size", "content_type", "sha256", "created_at"}

// fileBlobRepository implements FileBlobRepository.
type fileBlobRepository struct {
	db *gorm.DB
}

// NewFileBlobRepository creates a new FileBlobRepository.
func NewFileBlobRepository(db *gorm.DB) FileBlobRepository {
	return &fileBlobRepository{db: db}
}

func (r *fileBlobRepository) Create(ctx context.Context, blob *entities.PatientFileBlob) error {
	err := r.db.WithContext(ctx).Table(tablePatientFileBlobs).Create(blob).Error
	return translateError(err)
}

func (r *fileBlobRepository) Get(ctx context.Context, key string) (*entities.PatientFileBlob, error) {
	var blob entities.PatientFileBlob
	err := r.db.WithContext(ctx).Table(tablePatientFileBlobs).
		Where("blob_key = ?", key).
		First(&blob).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &blob, nil
}

func (r *fileBlobRepository) Head(ctx context.Context, key string) (*entities.PatientFileBlob, error) {
	var blob entities.PatientFileBlob
	err := r.db.WithContext(ctx).Table(tablePatientFileBlobs).
		Select(blobMetaColumns).
		Where("blob_key = ?", key).
		First(&blob).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &blob, nil
}

func (r *fileBlobRepository) Delete(ctx context.Context, key string) error {
	result := r.db.WithContext(ctx).Table(tablePatientFileBlobs).
		Where("blob_key = ?", key).
		Delete(&entities.PatientFileBlob{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBlobNotFound
	}
	return nil
}

func (r *fileBlobRepository) ListKeys(ctx context.Context, prefix string) ([]*entities.PatientFileBlob, error) {
	blobs := make([]*entities.PatientFileBlob, 0)
	query := r.db.WithContext(ctx).Table(tablePatientFileBlobs).Select(blobMetaColumns)
	if prefix != "" {
		query = query.Where("blob_key LIKE ? ESCAPE '!'", escapeLike(prefix)+"%")
	}
	err := query.Order("blob_key ASC").Find(&blobs).Error
	return blobs, err
}

// escapeLike escapes LIKE wildcards using '!' as the escape character
func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
