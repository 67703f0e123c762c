package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Image is the result of a successful upload.
type Image struct {
	URL       string // public URL used by the card pages
	StorageID string // object key, kept for later replacement/deletion
}

// Store is the object-storage collaborator for card images.
type Store interface {
	Upload(ctx context.Context, filename, contentType string, data []byte) (*Image, error)
	Delete(ctx context.Context, storageID string) error
}

// allowedExtensions 卡片图片允许的扩展名。
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// IsAllowedImage reports whether the filename carries an allowed image extension.
func IsAllowedImage(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// S3Config holds configuration for S3Store.
type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string // Optional custom endpoint (for MinIO, LocalStack, etc.)
	KeyPrefix     string // Optional key prefix
	PublicBaseURL string // Prefix for the public URL; defaults to the bucket endpoint
}

// S3Store implements Store using AWS S3. Objects are stored under a random
// uuid key so replacing a card image never collides with the old object.
type S3Store struct {
	client        *s3.Client
	bucket        string
	prefix        string
	publicBaseURL string
}

// NewS3Store creates a new S3-backed image store.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO/LocalStack
		}
	}

	publicBaseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	if publicBaseURL == "" {
		if cfg.Endpoint != "" {
			publicBaseURL = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
		} else {
			publicBaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}

	return &S3Store{
		client:        s3.NewFromConfig(awsCfg, clientOpts),
		bucket:        cfg.Bucket,
		prefix:        cfg.KeyPrefix,
		publicBaseURL: publicBaseURL,
	}, nil
}

// Upload persists the image and returns its public URL plus storage id.
func (s *S3Store) Upload(ctx context.Context, filename, contentType string, data []byte) (*Image, error) {
	if !IsAllowedImage(filename) {
		return nil, fmt.Errorf("disallowed image extension: %s", filepath.Ext(filename))
	}

	key := s.prefix + uuid.NewString() + strings.ToLower(filepath.Ext(filename))

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 put failed: %w", err)
	}

	return &Image{
		URL:       s.publicBaseURL + "/" + key,
		StorageID: key,
	}, nil
}

// Delete removes a previously uploaded image.
func (s *S3Store) Delete(ctx context.Context, storageID string) error {
	if storageID == "" {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storageID),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed for %s: %w", storageID, err)
	}
	return nil
}
