package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	config "github.com/maheshrc27/reelsync/configs"
	"github.com/maheshrc27/reelsync/internal/models"
)

// ObjectStore is the part of the S3 client used for archiving.
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type ArchiveService interface {
	ArchiveMetadata(ctx context.Context, profile, baseName string, meta *models.PostMetadata) error
}

type R2Service struct {
	bucket string
	client ObjectStore
}

func NewR2Service(ctx context.Context, cfg config.R2) (*R2Service, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
	})
	return NewR2ServiceWithClient(cfg.BucketName, client), nil
}

func NewR2ServiceWithClient(bucket string, client ObjectStore) *R2Service {
	return &R2Service{bucket: bucket, client: client}
}

func (r *R2Service) UploadToR2(ctx context.Context, key string, file []byte, filetype string) error {
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file),
		ContentType: aws.String(filetype),
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// ArchiveMetadata stores meta under <profile>/<base>/meta.json.
func (r *R2Service) ArchiveMetadata(ctx context.Context, profile, baseName string, meta *models.PostMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	return r.UploadToR2(ctx, path.Join(profile, baseName, "meta.json"), data, "application/json")
}
