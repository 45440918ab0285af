// Package publish uploads generated files to a blob bucket.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// buckets
	_ "gocloud.dev/blob/memblob"  // mem:// buckets
	"gocloud.dev/gcerrors"
)

// ContentType is the media type recorded for uploaded files.
const ContentType = "application/x-hdf5"

// ErrNotPublished is returned by Download for a key the bucket lacks.
var ErrNotPublished = errors.New("object not published")

// Metadata describes an uploaded file. It is stored as blob metadata.
type Metadata struct {
	RunID   uuid.UUID
	Dataset string
	Shape   string
	Dtype   string
}

func (m Metadata) attrs() map[string]string {
	return map[string]string{
		"run-id":  m.RunID.String(),
		"dataset": m.Dataset,
		"shape":   m.Shape,
		"dtype":   m.Dtype,
	}
}

// Publisher writes files into one bucket.
type Publisher struct {
	bucket *blob.Bucket
	log    *zap.SugaredLogger
}

// Open opens the bucket at url, e.g. "file:///srv/samples" or "mem://".
func Open(ctx context.Context, url string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket: %w", err)
	}
	return &Publisher{bucket: bucket, log: logger.Sugar().With("bucket", url)}, nil
}

// Key returns the object key a file is uploaded under: the run id
// followed by the file's base name.
func Key(runID uuid.UUID, path string) string {
	return runID.String() + "/" + filepath.Base(path)
}

// Upload copies the file at path into the bucket and returns its key.
func (p *Publisher) Upload(ctx context.Context, path string, meta Metadata) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	key := Key(meta.RunID, path)

	// Canceling the writer's context before Close discards the object.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w, err := p.bucket.NewWriter(wctx, key, &blob.WriterOptions{
		ContentType: ContentType,
		Metadata:    meta.attrs(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", key, err)
	}
	n, err := io.Copy(w, f)
	if err != nil {
		cancel()
		_ = w.Close()
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	p.log.Infow("file published", "key", key, "bytes", n, "run_id", meta.RunID)
	return key, nil
}

// Download copies the object at key into dst.
func (p *Publisher) Download(ctx context.Context, key string, dst io.Writer) (map[string]string, error) {
	r, err := p.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotPublished, key)
		}
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	defer r.Close()

	if _, err := io.Copy(dst, r); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	attrs, err := p.bucket.Attributes(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read attributes of %s: %w", key, err)
	}
	return attrs.Metadata, nil
}

// Close releases the bucket.
func (p *Publisher) Close() error {
	return p.bucket.Close()
}
