/*
Package storage offloads image payloads to S3-compatible object storage.

Objects are written once when a message is created, read through short-lived presigned
download URLs while the message is live, and deleted on a best-effort basis once the
message expires.
*/
package storage

import (
	"context"
	"time"
)

// DownloadURLExpiry is how long a presigned image URL stays valid.
const DownloadURLExpiry = 5 * time.Minute

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// StorageService defines the public interface for the image storage service.
type StorageService interface {
	// Put uploads data under key.
	Put(ctx context.Context, key, contentType string, data []byte) error

	// PresignDownload generates a pre-signed URL for downloading a file.
	PresignDownload(ctx context.Context, key string, duration time.Duration) (string, error)

	// Delete removes the file specified by the given key.
	Delete(ctx context.Context, key string) error
}

// NewStorageService is the factory function for StorageService.
// It initializes and returns a concrete implementation based on the provided configuration.
func NewStorageService(ctx context.Context, cfg ServiceConfig) (StorageService, error) {
	// Currently, only S3 compatible implementations are supported.
	return newS3Client(ctx, cfg)
}
