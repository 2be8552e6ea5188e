package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/noah-isme/sma-clearance-api/pkg/config"
)

// ErrObjectNotFound is returned when a reference does not name a stored object.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// ObjectStore reads and writes submitted files and signature images in an S3 compatible bucket.
type ObjectStore struct {
	client *minio.Client
	bucket string
}

// NewObjectStore builds a MinIO backed store. An empty endpoint disables object storage and
// returns nil without error.
func NewObjectStore(cfg config.ObjectStoreConfig) (*ObjectStore, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object store bucket required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &ObjectStore{client: client, bucket: cfg.Bucket}, nil
}

// Bucket returns the configured bucket name.
func (s *ObjectStore) Bucket() string { return s.bucket }

// EnsureBucket creates the bucket when it does not exist yet.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// Get opens the object named by reference. The caller closes the reader.
func (s *ObjectStore) Get(ctx context.Context, reference string) (io.ReadCloser, ObjectInfo, error) {
	key, err := ObjectKey(reference)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	stat, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, translateError(err)
	}
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, translateError(err)
	}
	return object, ObjectInfo{
		Key:          key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		LastModified: stat.LastModified,
	}, nil
}

// ObjectKey normalises a file reference into a bucket key. References may carry a leading
// slash or an s3://bucket/ prefix.
func ObjectKey(reference string) (string, error) {
	ref := strings.TrimSpace(reference)
	if strings.HasPrefix(ref, "s3://") {
		ref = strings.TrimPrefix(ref, "s3://")
		if idx := strings.Index(ref, "/"); idx >= 0 {
			ref = ref[idx+1:]
		} else {
			ref = ""
		}
	}
	ref = strings.TrimPrefix(ref, "/")
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrInvalidPath)
	}
	for _, part := range strings.Split(ref, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, reference)
		}
	}
	return path.Clean(ref), nil
}

func translateError(err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return fmt.Errorf("%w: %s", ErrObjectNotFound, resp.Key)
	}
	return fmt.Errorf("read object: %w", err)
}
