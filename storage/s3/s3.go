// Package s3 stores blobs in an S3 bucket.  Each container is a key
// prefix of the bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/jobhost/bindings/blobpath"
	"github.com/jobhost/bindings/storage"
)

type (
	// API is the subset of the S3 client used for blobs.
	API interface {
		GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
		PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
		HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	}

	// Config locates the bucket.
	Config struct {
		Bucket         string `path:"bucket" validate:"required"`
		Region         string `path:"region"`
		Endpoint       string `path:"endpoint"`
		ForcePathStyle bool   `path:"forcePathStyle"`
		AccessKey      string `path:"accessKey"`
		SecretKey      string `path:"secretKey"`
	}

	// Blobs implements storage.Blobs over S3.
	Blobs struct {
		api    API
		bucket string
	}

	objectWriter struct {
		bytes.Buffer
		ctx    context.Context
		blobs  *Blobs
		key    string
		closed bool
	}
)

// Validate checks the endpoint is a url and that keys come in pairs.
func (c *Config) Validate() error {
	if c.Endpoint != "" && !govalidator.IsURL(c.Endpoint) {
		return fmt.Errorf("s3: endpoint %q is not a url", c.Endpoint)
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return errors.New("s3: access key and secret key must be set together")
	}
	return nil
}

// NewClient creates an S3 client from cfg.  Static credentials are
// used when an access key is configured.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}), nil
}

// New creates Blobs stored in bucket.
func New(api API, bucket string) *Blobs {
	return &Blobs{api, bucket}
}

// Account exposes the blobs as the only capability of an account.
func (b *Blobs) Account() *storage.Account {
	return &storage.Account{Blobs: b}
}

func (b *Blobs) Exists(ctx context.Context, p blobpath.Path) (bool, error) {
	_, found, err := b.LastModified(ctx, p)
	return found, err
}

func (b *Blobs) ReadText(ctx context.Context, p blobpath.Path) (string, bool, error) {
	r, err := b.OpenRead(ctx, p)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

func (b *Blobs) OpenRead(ctx context.Context, p blobpath.Path) (io.ReadCloser, error) {
	key, err := keyOf(p)
	if err != nil {
		return nil, err
	}
	out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, b.translateError(err, "GetObject", key)
	}
	return out.Body, nil
}

// OpenWrite buffers the blob and uploads it when the writer closes.
func (b *Blobs) OpenWrite(ctx context.Context, p blobpath.Path) (io.WriteCloser, error) {
	key, err := keyOf(p)
	if err != nil {
		return nil, err
	}
	return &objectWriter{ctx: ctx, blobs: b, key: key}, nil
}

func (b *Blobs) LastModified(ctx context.Context, p blobpath.Path) (time.Time, bool, error) {
	key, err := keyOf(p)
	if err != nil {
		return time.Time{}, false, err
	}
	out, err := b.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if err = b.translateError(err, "HeadObject", key); errors.Is(err, storage.ErrNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return aws.ToTime(out.LastModified), true, nil
}

func (w *objectWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_, err := w.blobs.api.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.blobs.bucket),
		Key:         aws.String(w.key),
		Body:        bytes.NewReader(w.Bytes()),
		ContentType: aws.String(contentType(w.key)),
	})
	if err != nil {
		return w.blobs.translateError(err, "PutObject", w.key)
	}
	return nil
}

func (b *Blobs) translateError(err error, operation, key string) error {
	switch {
	case isErrorType[*s3types.NoSuchKey](err), isErrorType[*s3types.NotFound](err):
		return fmt.Errorf("object %s: %w", key, storage.ErrNotFound)
	case isErrorType[*s3types.NoSuchBucket](err):
		return fmt.Errorf("bucket %s: %w", b.bucket, storage.ErrNotFound)
	default:
		return fmt.Errorf("%s failed for %s: %w", operation, key, err)
	}
}

func keyOf(p blobpath.Path) (string, error) {
	if err := storage.ValidateBlobPath(p); err != nil {
		return "", err
	}
	return p.Container + "/" + p.Blob, nil
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".json":
		return "application/json"
	case ".xml":
		return "application/xml"
	case ".txt", ".csv":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

func isErrorType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
