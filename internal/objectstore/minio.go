// Package objectstore fetches videos from a MinIO/S3 bucket into local
// temp files so the decode layer can seek them by frame number.
package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Fetcher struct {
	client *miniogo.Client
	bucket string
}

type FetcherConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

func NewFetcher(cfg FetcherConfig) (*Fetcher, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: create client: %w", err)
	}
	return &Fetcher{client: client, bucket: cfg.Bucket}, nil
}

// FetchVideo downloads the object into destDir, keeping its basename so
// stored metadata carries the original video name. Returns the local path.
func (f *Fetcher) FetchVideo(ctx context.Context, objectKey, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("objectstore: create dest dir: %w", err)
	}
	destPath := filepath.Join(destDir, filepath.Base(objectKey))
	if err := f.client.FGetObject(ctx, f.bucket, objectKey, destPath, miniogo.GetObjectOptions{}); err != nil {
		return "", fmt.Errorf("objectstore: fetch %s/%s: %w", f.bucket, objectKey, err)
	}
	return destPath, nil
}
