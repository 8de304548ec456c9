package evidence

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hazz-dev/shipcheck/internal/config"
)

// Mirror receives a copy of every artifact written locally.
type Mirror interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) error
}

// ObjectClient is the subset of the minio client the mirror uses.
type ObjectClient interface {
	// PutObject uploads an object.
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3Mirror uploads artifacts to an S3-compatible bucket.
type S3Mirror struct {
	client ObjectClient
	bucket string
	prefix string
}

const mirrorTimeout = 30 * time.Second

// NewS3Mirror builds a minio client from cfg.
func NewS3Mirror(cfg config.S3) (*S3Mirror, error) {
	// Minio expects endpoint without scheme
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   mirrorTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   mirrorTimeout,
		ResponseHeaderTimeout: mirrorTimeout,
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return NewS3MirrorWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3MirrorWithClient creates a mirror over an existing client (for testing).
func NewS3MirrorWithClient(client ObjectClient, bucket, prefix string) *S3Mirror {
	return &S3Mirror{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// ObjectName returns the key an artifact is stored under.
func (m *S3Mirror) ObjectName(name string) string {
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// Upload stores data under <prefix>/<name>.
func (m *S3Mirror) Upload(ctx context.Context, name string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()

	object := m.ObjectName(name)
	_, err := m.client.PutObject(ctx, m.bucket, object, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("uploading %s/%s: %w", m.bucket, object, err)
	}
	return nil
}
