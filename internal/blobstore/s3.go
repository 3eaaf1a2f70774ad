package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/clinicdesk/patientkeeper/internal/errors"
)

// S3Config holds construction parameters for S3Store.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // custom endpoint, e.g. MinIO
	Prefix          string // prepended to every key inside the bucket
	AccessKeyID     string // empty falls back to the default credential chain
	SecretAccessKey string
	UsePathStyle    bool
}

// S3Store keeps blobs as objects in a single bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store builds an S3 client from cfg.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.Newf("s3 bucket is required").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to load aws config: %w", err)).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		// MinIO and older S3-compatible servers reject default trailing checksums
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: normalizePrefix(cfg.Prefix),
	}, nil
}

// Driver returns DriverS3.
func (s *S3Store) Driver() Driver { return DriverS3 }

// Put uploads with If-None-Match: * so the bucket rejects existing keys.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	key, err := CleanKey(key)
	if err != nil {
		return Info{}, err
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        r,
		ContentType: aws.String(contentType),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if httpStatus(err) == http.StatusPreconditionFailed {
			return Info{}, alreadyExists(key)
		}
		return Info{}, storageError(err, "put", key)
	}
	return s.Head(ctx, key)
}

// Get streams the object body.
func (s *S3Store) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	key, err := CleanKey(key)
	if err != nil {
		return Info{}, nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return Info{}, nil, s.mapError(err, "get", key)
	}
	info := objectInfo(key, out.ContentLength, out.ContentType, out.ETag, out.LastModified)
	return info, out.Body, nil
}

// Head fetches object metadata.
func (s *S3Store) Head(ctx context.Context, key string) (Info, error) {
	key, err := CleanKey(key)
	if err != nil {
		return Info{}, err
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return Info{}, s.mapError(err, "head", key)
	}
	return objectInfo(key, out.ContentLength, out.ContentType, out.ETag, out.LastModified), nil
}

// Delete heads the object first because S3 deletes are idempotent and
// do not report whether anything was removed.
func (s *S3Store) Delete(ctx context.Context, key string) (bool, error) {
	if _, err := s.Head(ctx, key); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return false, storageError(err, "delete", key)
	}
	return true, nil
}

// List pages through ListObjectsV2.
func (s *S3Store) List(ctx context.Context, prefix string) ([]Info, error) {
	infos := make([]Info, 0)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.objectKey(prefix)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, storageError(err, "list", prefix)
		}
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			infos = append(infos, objectInfo(key, obj.Size, nil, obj.ETag, obj.LastModified))
		}
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *S3Store) objectKey(key string) string {
	return s.prefix + key
}

func (s *S3Store) mapError(err error, operation, key string) error {
	var noSuchKey *types.NoSuchKey
	var notFoundErr *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFoundErr) || httpStatus(err) == http.StatusNotFound {
		return notFound(key)
	}
	return storageError(err, operation, key)
}

func httpStatus(err error) int {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return 0
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func objectInfo(key string, size *int64, contentType, etag *string, lastModified *time.Time) Info {
	info := Info{
		Key:          key,
		Size:         aws.ToInt64(size),
		ContentType:  aws.ToString(contentType),
		ETag:         strings.Trim(aws.ToString(etag), `"`),
		LastModified: aws.ToTime(lastModified).UTC(),
	}
	if info.ContentType == "" {
		info.ContentType = ContentTypeFor(key)
	}
	return info
}
