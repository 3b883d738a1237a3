package backup

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"glyphos/pkg/config"
)

// Mirror uploads backups to an S3-compatible bucket.
type Mirror struct {
	mc     *minio.Client
	bucket string
	prefix string
}

// NewMirror creates a mirror client from cfg. It does not contact the server;
// call Init to make sure the bucket exists.
func NewMirror(cfg config.MirrorConfig) (*Mirror, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("backup mirror: endpoint not configured")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("backup mirror: bucket not configured")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Mirror{mc: mc, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Init creates the bucket if it does not exist.
func (m *Mirror) Init(ctx context.Context) error {
	exists, err := m.mc.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if !exists {
		if err := m.mc.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", m.bucket, err)
		}
	}
	return nil
}

// ObjectKey returns the object name a local backup is stored under.
func (m *Mirror) ObjectKey(localPath string) string {
	return objectKey(m.prefix, localPath)
}

func objectKey(prefix, localPath string) string {
	name := filepath.Base(localPath)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Upload puts the file at localPath into the bucket and returns its key.
func (m *Mirror) Upload(ctx context.Context, localPath string) (string, error) {
	key := m.ObjectKey(localPath)
	_, err := m.mc.FPutObject(ctx, m.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: "application/vnd.sqlite3",
	})
	if err != nil {
		return "", fmt.Errorf("upload %s/%s: %w", m.bucket, key, err)
	}
	return key, nil
}
