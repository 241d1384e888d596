package minio

import (
	"context"
	"fmt"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArtifactStore keeps source uploads and processing outputs in two buckets.
type ArtifactStore struct {
	client       *miniogo.Client
	sourceBucket string
	outputBucket string
	baseURL      string
}

type StoreConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	SourceBucket string
	OutputBucket string
	// PublicBaseURL is the externally reachable prefix for stored artifacts
	// (a CDN or the object store itself).
	PublicBaseURL string
}

func NewArtifactStore(cfg StoreConfig) (*ArtifactStore, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &ArtifactStore{
		client:       client,
		sourceBucket: cfg.SourceBucket,
		outputBucket: cfg.OutputBucket,
		baseURL:      strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

func (s *ArtifactStore) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.sourceBucket, s.outputBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

func (s *ArtifactStore) Download(ctx context.Context, key, destPath string) error {
	return s.client.FGetObject(ctx, s.sourceBucket, key, destPath, miniogo.GetObjectOptions{})
}

func (s *ArtifactStore) Upload(ctx context.Context, localPath, key, contentType string) (string, int64, error) {
	info, err := s.client.FPutObject(ctx, s.outputBucket, key, localPath, miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", 0, fmt.Errorf("upload %s: %w", key, err)
	}
	return fmt.Sprintf("%s/%s/%s", s.baseURL, s.outputBucket, key), info.Size, nil
}

func (s *ArtifactStore) Delete(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.outputBucket, key, miniogo.RemoveObjectOptions{})
}
