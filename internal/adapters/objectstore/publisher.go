// Package objectstore publishes merged exports to object storage.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/bft-labs/harvester/internal/ports"
)

// Publisher uploads exports to a bucket addressed by URL,
// e.g. "s3://bucket?region=us-west-2", "gs://bucket" or "file:///srv/exports".
type Publisher struct {
	bucketURL string
	prefix    string
	logger    ports.Logger

	// bucket is used instead of opening bucketURL when set.
	bucket *blob.Bucket
}

// NewPublisher creates a publisher for bucketURL. Keys are placed under prefix.
func NewPublisher(bucketURL, prefix string, logger ports.Logger) *Publisher {
	return &Publisher{bucketURL: bucketURL, prefix: strings.Trim(prefix, "/"), logger: logger}
}

// NewBucketPublisher creates a publisher writing to an already opened bucket.
// The caller keeps ownership of bucket.
func NewBucketPublisher(bucket *blob.Bucket, prefix string, logger ports.Logger) *Publisher {
	return &Publisher{bucket: bucket, prefix: strings.Trim(prefix, "/"), logger: logger}
}

// Publish implements ports.Publisher.
func (p *Publisher) Publish(ctx context.Context, file, key string) (string, error) {
	bkt := p.bucket
	if bkt == nil {
		var err error
		bkt, err = blob.OpenBucket(ctx, p.bucketURL)
		if err != nil {
			return "", fmt.Errorf("open bucket: %w", err)
		}
		defer bkt.Close()
	}

	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if p.prefix != "" {
		key = path.Join(p.prefix, key)
	}

	opts := &blob.WriterOptions{ContentType: contentType(file)}
	w, err := bkt.NewWriter(ctx, key, opts)
	if err != nil {
		return "", fmt.Errorf("open object %s: %w", key, err)
	}
	n, err := io.Copy(w, f)
	if err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finish %s: %w", key, err)
	}

	loc := p.location(key)
	p.logger.Info("export published",
		ports.String("object", loc),
		ports.Int64("bytes", n),
	)
	return loc, nil
}

func (p *Publisher) location(key string) string {
	if p.bucketURL == "" {
		return key
	}
	base := p.bucketURL
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base = base[:i]
	}
	return strings.TrimRight(base, "/") + "/" + key
}

func contentType(file string) string {
	switch {
	case strings.HasSuffix(file, ".xz"):
		return "application/x-xz"
	case strings.HasSuffix(file, ".csv"):
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
