// Package gcs mirrors finished documents to Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to mirror into GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
}

type writerFunc func(ctx context.Context, object, contentType string) io.WriteCloser

// BlobStore writes artifacts to a configured GCS bucket.
type BlobStore struct {
	bucket    string
	prefix    string
	newWriter writerFunc
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	bucket := client.Bucket(cfg.Bucket)
	return newWithWriter(cfg, func(ctx context.Context, object, contentType string) io.WriteCloser {
		w := bucket.Object(object).NewWriter(ctx)
		if contentType != "" {
			w.ContentType = contentType
		}
		return w
	}), nil
}

func newWithWriter(cfg Config, fn writerFunc) *BlobStore {
	return &BlobStore{
		bucket:    cfg.Bucket,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		newWriter: fn,
	}
}

// PutObject uploads data under the configured prefix and returns a gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("path is required")
	}
	object := s.objectName(name)
	writer := s.newWriter(ctx, object, contentType)
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}

// MirrorFile uploads the local file at localPath as name.
func (s *BlobStore) MirrorFile(ctx context.Context, localPath, name string) (string, error) {
	// #nosec G304 -- localPath is a document this process just produced.
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()
	return s.PutObject(ctx, name, "application/pdf", f)
}

func (s *BlobStore) objectName(name string) string {
	name = strings.TrimLeft(strings.ReplaceAll(name, `\`, "/"), "/")
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}
