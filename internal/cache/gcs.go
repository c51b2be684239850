package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/socialcards/internal/cards"
)

// GCS stores each batch as a JSON object in a Cloud Storage bucket, for builds
// where planning and capture run on different machines.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
	owned  bool
}

// NewGCS creates a client using Application Default Credentials and checks the bucket.
func NewGCS(ctx context.Context, cfg GCSConfig, keyPrefix string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("get gcs bucket %q attributes: %w", cfg.Bucket, err)
	}
	store, err := NewGCSWithClient(client, cfg, keyPrefix)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	store.owned = true
	return store, nil
}

// NewGCSWithClient wraps an existing client. The caller keeps ownership of it.
func NewGCSWithClient(client *storage.Client, cfg GCSConfig, keyPrefix string) (*GCS, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if keyPrefix != "" {
		prefix = path.Join(prefix, keyPrefix)
	}
	return &GCS{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

// ObjectName returns the object holding key.
func (g *GCS) ObjectName(key string) string {
	if g.prefix == "" {
		return key + ".json"
	}
	return g.prefix + "/" + key + ".json"
}

// Set uploads the batch, replacing any previous object.
func (g *GCS) Set(ctx context.Context, key string, batch cards.JobBatch) error {
	data, err := encode(batch)
	if err != nil {
		return err
	}
	writer := g.client.Bucket(g.bucket).Object(g.ObjectName(key)).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Get downloads the batch, or returns an empty batch when the object is missing.
func (g *GCS) Get(ctx context.Context, key string) (cards.JobBatch, error) {
	reader, err := g.client.Bucket(g.bucket).Object(g.ObjectName(key)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return cards.JobBatch{}, nil
		}
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer reader.Close() //nolint:errcheck // read-only
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return decode(data)
}

// Close closes the client when this cache created it.
func (g *GCS) Close() error {
	if !g.owned {
		return nil
	}
	if err := g.client.Close(); err != nil {
		return fmt.Errorf("close gcs client: %w", err)
	}
	return nil
}
