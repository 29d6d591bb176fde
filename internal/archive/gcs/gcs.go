// Package gcs provides a payload archive backed by Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Store uploads payloads into a bucket under a fixed prefix.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

// New wraps an existing storage client.
func New(client *storage.Client, bucket, prefix string) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

// Put uploads one payload as application/json.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	path := name
	if s.prefix != "" {
		path = s.prefix + "/" + name
	}
	writer := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("upload payload %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close payload writer: %w", err)
	}
	return nil
}
