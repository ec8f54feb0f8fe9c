// Package blobstore wraps MinIO/S3 interactions for register data files and
// their metadata companions. One Store is built at startup and shared across
// requests; the underlying client is stateless with respect to individual
// uploads.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/er-portal/internal/config"
)

// Store streams blobs into a single configured container.
type Store struct {
	client      *minio.Client
	container   string
	chunkSize   int64
	concurrency int
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Store, error) {
	client, err := minio.New(cfg.StorageEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.StorageAccessKey, cfg.StorageSecretKey, ""),
		Secure: cfg.StorageUseSSL,
		Region: cfg.StorageRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("init object store client: %w", err)
	}
	return &Store{
		client:      client,
		container:   cfg.StorageContainer,
		chunkSize:   cfg.UploadChunkSize,
		concurrency: cfg.UploadConcurrency,
	}, nil
}

// Container returns the configured container name, for log context.
func (s *Store) Container() string {
	return s.container
}

// ContainerExists checks the configured container before any write begins.
func (s *Store) ContainerExists(ctx context.Context) (bool, error) {
	exists, err := s.client.BucketExists(ctx, s.container)
	if err != nil {
		return false, fmt.Errorf("check container %s: %w", s.container, err)
	}
	return exists, nil
}

// UploadStream writes a blob of unknown length from r, transferring fixed
// size chunks with bounded parallelism rather than buffering the whole file.
// It returns the number of bytes committed.
func (s *Store) UploadStream(ctx context.Context, key string, r io.Reader, contentType string) (int64, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	opts := minio.PutObjectOptions{
		ContentType: contentType,
		PartSize:    uint64(s.chunkSize),
		NumThreads:  uint(s.concurrency),
	}
	// Size -1 selects the streaming multipart path inside the client.
	info, err := s.client.PutObject(ctx, s.container, key, r, -1, opts)
	if err != nil {
		return 0, fmt.Errorf("upload stream %s: %w", key, err)
	}
	return info.Size, nil
}

// UploadBytes writes a small fully materialized blob, such as the metadata
// companion record.
func (s *Store) UploadBytes(ctx context.Context, key string, data []byte, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	_, err := s.client.PutObject(ctx, s.container, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("upload blob %s: %w", key, err)
	}
	return nil
}
