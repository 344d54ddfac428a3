// Package archive stores original receipt images next to the ledger.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
)

const uploadTimeout = 2 * time.Minute

var ErrInvalidRef = errors.New("invalid archive reference")

// Archiver persists a receipt image and returns a reference to it.
type Archiver interface {
	Store(ctx context.Context, file core.ReceiptFile) (ref string, err error)
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

var _ Archiver = (*GCSArchiver)(nil)

// objectStore is the slice of a GCS bucket the archiver needs.
type objectStore interface {
	NewWriter(ctx context.Context, object, contentType string) io.WriteCloser
	NewReader(ctx context.Context, object string) (io.ReadCloser, error)
}

type bucketHandle struct {
	b *storage.BucketHandle
}

func (h bucketHandle) NewWriter(ctx context.Context, object, contentType string) io.WriteCloser {
	w := h.b.Object(object).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (h bucketHandle) NewReader(ctx context.Context, object string) (io.ReadCloser, error) {
	return h.b.Object(object).NewReader(ctx)
}

type GCSArchiver struct {
	bucket string
	store  objectStore
	client *storage.Client
	logger *log.Logger
	now    func() time.Time
}

// NewGCSArchiver uses Application Default Credentials.
func NewGCSArchiver(ctx context.Context, bucket string, logger *log.Logger) (*GCSArchiver, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("missing bucket name")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	a := newGCSArchiver(bucket, bucketHandle{b: client.Bucket(bucket)}, logger)
	a.client = client
	return a, nil
}

func newGCSArchiver(bucket string, store objectStore, logger *log.Logger) *GCSArchiver {
	if logger == nil {
		logger = log.Discard()
	}
	return &GCSArchiver{
		bucket: bucket,
		store:  store,
		logger: logger.WithComponent(log.ComponentArchive),
		now:    time.Now,
	}
}

// Store uploads the image to receipts/YYYY/MM/DD/<uuid>-<name> and returns its gs:// URI.
func (a *GCSArchiver) Store(ctx context.Context, file core.ReceiptFile) (string, error) {
	object := ObjectName(a.now(), uuid.New(), file.Name)

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := a.store.NewWriter(ctx, object, file.ContentType)
	if _, err := w.Write(file.Data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write receipt to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	ref := "gs://" + a.bucket + "/" + object
	a.logger.InfoContext(ctx, "Receipt archived", log.FieldReceiptRef, ref, "bytes", len(file.Data))
	return ref, nil
}

// Fetch downloads an archived receipt by its gs:// reference.
func (a *GCSArchiver) Fetch(ctx context.Context, ref string) ([]byte, error) {
	bucket, object, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}
	if bucket != a.bucket {
		return nil, fmt.Errorf("%w: bucket %q is not %q", ErrInvalidRef, bucket, a.bucket)
	}
	r, err := a.store.NewReader(ctx, object)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read GCS object: %w", err)
	}
	return data, nil
}

func (a *GCSArchiver) Close() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

// ObjectName builds the object path for a receipt stored at t.
func ObjectName(t time.Time, id uuid.UUID, name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "receipt"
	}
	return fmt.Sprintf("receipts/%s/%s-%s", t.UTC().Format("2006/01/02"), id, base)
}

// ParseRef splits gs://bucket/object.
func ParseRef(ref string) (bucket, object string, err error) {
	if !strings.HasPrefix(ref, "gs://") {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidRef, ref)
	}
	parts := strings.SplitN(strings.TrimPrefix(ref, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w (no object path): %s", ErrInvalidRef, ref)
	}
	return parts[0], parts[1], nil
}
