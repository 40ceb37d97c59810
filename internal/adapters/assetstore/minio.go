package assetstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Amund211/assetcache/internal/codec"
	"github.com/Amund211/assetcache/internal/domain"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Minio loads the asset with key k from the object k in a single bucket
type Minio struct {
	client *minio.Client
	bucket string

	handles *handleTracker
	tracer  trace.Tracer
}

type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

func NewMinioClient(opts MinioOptions) (*minio.Client, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return client, nil
}

func NewMinio(client *minio.Client, bucket string, logger *slog.Logger) *Minio {
	return &Minio{
		client: client,
		bucket: bucket,

		handles: newHandleTracker(logger.With("store", "minio", "bucket", bucket)),
		tracer:  otel.Tracer("assetcache/assetstore/minio"),
	}
}

func isNotFound(err error) bool {
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		return false
	}
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return true
	}
	return false
}

// EnsureBucket creates the bucket if it does not already exist
func (m *Minio) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}

	err = m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", m.bucket, err)
	}
	return nil
}

func (m *Minio) Put(ctx context.Context, key string, raw []byte) error {
	ctx, span := m.tracer.Start(ctx, "Minio.Put", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

func (m *Minio) Load(ctx context.Context, key string, hint domain.TypeHint) (Handle, *domain.Asset, error) {
	ctx, span := m.tracer.Start(ctx, "Minio.Load", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	if key == "" {
		return nil, nil, fmt.Errorf("%w: key %q", domain.ErrInvalidKey, key)
	}

	object, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, fmt.Errorf("%w: key %q", domain.ErrAssetNotFound, key)
		}
		span.RecordError(err)
		return nil, nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer object.Close()

	// GetObject is lazy, the not found error surfaces on the first read
	raw, err := io.ReadAll(object)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, fmt.Errorf("%w: key %q", domain.ErrAssetNotFound, key)
		}
		span.RecordError(err)
		return nil, nil, fmt.Errorf("failed to read object: %w", err)
	}

	asset, err := codec.Decode(key, raw, hint)
	if err != nil {
		return nil, nil, err
	}

	return m.handles.issue(key), asset, nil
}

func (m *Minio) Release(handle Handle) {
	m.handles.release(handle)
}

func (m *Minio) Outstanding() int {
	return m.handles.count()
}
