package blobstore

import (
	"context"

	"github.com/clinicdesk/patientkeeper/internal/conf"
	"github.com/clinicdesk/patientkeeper/internal/datastore/repository"
	"github.com/clinicdesk/patientkeeper/internal/errors"
)

// Open builds the store selected by settings.Driver. The blob repository
// is only used by the database driver and may be nil otherwise.
func Open(ctx context.Context, settings *conf.BlobStoreSettings, blobs repository.FileBlobRepository) (Store, error) {
	switch Driver(settings.Driver) {
	case DriverFilesystem, "":
		return NewFSStore(settings.Root)
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverDatabase:
		if blobs == nil {
			return nil, errors.Newf("database blob driver requires a blob repository").
				Component(componentName).
				Category(errors.CategoryConfiguration).
				Build()
		}
		return NewDatabaseStore(blobs), nil
	case DriverS3:
		return NewS3Store(ctx, S3Config{
			Bucket:          settings.S3.Bucket,
			Region:          settings.S3.Region,
			Endpoint:        settings.S3.Endpoint,
			Prefix:          settings.S3.Prefix,
			AccessKeyID:     settings.S3.AccessKeyID,
			SecretAccessKey: settings.S3.SecretAccessKey,
			UsePathStyle:    settings.S3.UsePathStyle,
		})
	default:
		return nil, errors.Newf("unknown blob driver %q", settings.Driver).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Context("driver", settings.Driver).
			Build()
	}
}
