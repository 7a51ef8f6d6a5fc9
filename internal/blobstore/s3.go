// Package blobstore provides ports.BlobStore implementations for the
// legacy on-disk SBOM migration path: a local-filesystem store for
// single-node deployments and an S3-backed store for fleets that already
// keep archived SBOMs in object storage. Adapted from the teacher's
// internal/storage (package aws) S3Client.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/42ByteLabs/konarr-core/internal/ports"
)

var _ ports.BlobStore = (*S3Store)(nil)

// S3Config holds configuration for the S3-backed blob store.
type S3Config struct {
	Region           string        `mapstructure:"region"`
	Bucket           string        `mapstructure:"bucket"`
	Endpoint         string        `mapstructure:"endpoint"`
	ForcePathStyle   bool          `mapstructure:"force_path_style"`
	UploadPartSize   int64         `mapstructure:"upload_part_size"`
	DownloadPartSize int64         `mapstructure:"download_part_size"`
	Concurrency      int           `mapstructure:"concurrency"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

// S3Store implements ports.BlobStore against an S3-compatible bucket, for
// fleets migrating SBOM archives out of on-disk storage.
type S3Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	cfg        S3Config
}

// NewS3Store builds an S3Store, resolving AWS credentials the standard way
// (environment, shared config, instance role) with an optional custom
// endpoint for S3-compatible services such as LocalStack or MinIO.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var options []func(*config.LoadOptions) error
	options = append(options, config.WithRegion(cfg.Region))

	if cfg.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.Endpoint,
				HostnameImmutable: true,
				SigningRegion:     cfg.Region,
			}, nil
		})
		options = append(options, config.WithEndpointResolverWithOptions(resolver))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("blobstore: load aws config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if cfg.ForcePathStyle {
		s3Options = append(s3Options, func(o *s3.Options) { o.UsePathStyle = true })
	}
	client := s3.NewFromConfig(awsCfg, s3Options...)

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = cfg.UploadPartSize
		u.Concurrency = cfg.Concurrency
	})
	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.PartSize = cfg.DownloadPartSize
		d.Concurrency = cfg.Concurrency
	})

	return &S3Store{client: client, uploader: uploader, downloader: downloader, cfg: cfg}, nil
}

// Put uploads body under key, per ports.BlobStore.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("blobstore: put %s: %w", key, err)
	}
	return nil
}

// Get retrieves the object at key, per ports.BlobStore. The download
// manager requires an io.WriterAt, so the full object is buffered in memory
// before being handed back as a ReadCloser — acceptable for SBOM-sized
// archives, not for arbitrarily large blobs.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	buf := manager.NewWriteAtBuffer([]byte{})
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: get %s: %w", key, err)
	}
	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}

// Delete removes the object at key, per ports.BlobStore.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("blobstore: delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}
