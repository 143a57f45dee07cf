package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/chatline/chatline/pkg/logging"
)

// S3API is the subset of the S3 client used by Writer for archival copies.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Writer persists downloaded attachments under the public media root, one
// directory per tenant, and optionally mirrors each file to S3.
type Writer struct {
	publicRoot    string
	archiveBucket string
	s3Client      S3API
	logger        *logging.Logger
}

// NewWriter creates a Writer rooted at publicRoot. If bucket is empty the
// S3 mirror is disabled.
func NewWriter(publicRoot string, s3Client S3API, bucket string, logger *logging.Logger) *Writer {
	if publicRoot == "" {
		panic("media: publicRoot is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Writer{
		publicRoot:    publicRoot,
		archiveBucket: bucket,
		s3Client:      s3Client,
		logger:        logger,
	}
}

// Save writes an attachment to <publicRoot>/company<tenantID>/<filename>
// and returns the filename. The tenant directory is created on first use
// with a permissive mode so the static file server can read it.
func (w *Writer) Save(ctx context.Context, tenantID int64, filename string, data []byte) (string, error) {
	dir := filepath.Join(w.publicRoot, fmt.Sprintf("company%d", tenantID))
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return "", fmt.Errorf("media: create tenant dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o666); err != nil {
		return "", fmt.Errorf("media: write %s: %w", path, err)
	}

	if w.archiveEnabled() {
		if err := w.archive(ctx, tenantID, filename, data); err != nil {
			// The local copy is what the app serves; an archive miss is
			// not worth failing the message for.
			w.logger.Warn("media archive upload failed", "error", err, "tenant_id", tenantID, "filename", filename)
		}
	}

	return filename, nil
}

// Path returns the on-disk path for a previously saved attachment.
func (w *Writer) Path(tenantID int64, filename string) string {
	return filepath.Join(w.publicRoot, fmt.Sprintf("company%d", tenantID), Sanitize(filename))
}

func (w *Writer) archiveEnabled() bool {
	return w.archiveBucket != "" && w.s3Client != nil
}

func (w *Writer) archive(ctx context.Context, tenantID int64, filename string, data []byte) error {
	key := fmt.Sprintf("media/company%d/%s", tenantID, filename)
	_, err := w.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.archiveBucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("media: s3 put %s: %w", key, err)
	}
	return nil
}
