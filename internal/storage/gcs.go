package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GCSBlobStore — реализация BlobStore поверх Google Cloud Storage.
type GCSBlobStore struct {
	client     *storage.Client
	bucketName string
	cdnDomain  string
	logger     *zap.Logger
}

// NewGCSBlobStore создает клиент GCS. credentialsFile пустой — используются
// Application Default Credentials.
func NewGCSBlobStore(ctx context.Context, bucketName, cdnDomain, credentialsFile string, logger *zap.Logger) (*GCSBlobStore, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("storage bucket name is not configured")
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSBlobStore{
		client:     client,
		bucketName: bucketName,
		cdnDomain:  cdnDomain,
		logger:     logger.Named("gcs_storage"),
	}, nil
}

func (s *GCSBlobStore) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucketName).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write object %q: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object %q: %w", path, err)
	}
	s.logger.Debug("Object uploaded", zap.String("path", path), zap.Int("size_bytes", len(data)))
	return nil
}

func (s *GCSBlobStore) GetPublicURL(path string) string {
	path = strings.TrimPrefix(path, "/")
	if s.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", s.cdnDomain, path)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucketName, path)
}

// Remove удаляет объекты по одному; первая ошибка прерывает обход,
// уже удалённые объекты не восстанавливаются.
func (s *GCSBlobStore) Remove(ctx context.Context, paths []string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, p := range paths {
		if err := s.client.Bucket(s.bucketName).Object(p).Delete(ctx); err != nil {
			return fmt.Errorf("failed to delete object %q: %w", p, err)
		}
		s.logger.Debug("Object removed", zap.String("path", p))
	}
	return nil
}

// Close освобождает ресурсы клиента.
func (s *GCSBlobStore) Close() error {
	return s.client.Close()
}
