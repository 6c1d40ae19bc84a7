// Package gcsblob stores attachments in a Google Cloud Storage bucket, the
// same backing the original deployment used for file uploads.
package gcsblob

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/digitalequity/seasure-sp2/internal/blob"
)

const uploadTimeout = 2 * time.Minute

type Store struct {
	client    *storage.Client
	bucket    string
	cdnDomain string
}

// New connects a GCS-backed attachment store. cdnDomain is optional; when
// set, returned URLs point at the CDN instead of storage.googleapis.com.
func New(ctx context.Context, bucket, cdnDomain string, opts ...option.ClientOption) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcsblob: bucket name is required")
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcsblob: create client: %w", err)
	}
	return &Store{client: client, bucket: bucket, cdnDomain: cdnDomain}, nil
}

func (s *Store) Upload(ctx context.Context, path string, r io.Reader, size int64, onProgress blob.ProgressFunc) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, blob.NewProgressReader(r, size, onProgress)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcsblob: write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcsblob: close writer: %w", err)
	}
	return s.publicURL(path), nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if err := s.client.Bucket(s.bucket).Object(path).Delete(ctx); err != nil {
		return fmt.Errorf("gcsblob: delete object: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) publicURL(path string) string {
	if s.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", s.cdnDomain, path)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, path)
}
