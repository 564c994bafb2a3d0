package service

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	config "github.com/conscious-collective/relay-social/configs"
)

// R2Service stores media bytes in a Cloudflare R2 bucket through the
// S3-compatible API.
type R2Service struct {
	client *s3.Client
	bucket string
}

func NewR2Service(cfg *config.Config) *R2Service {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.R2.AccessKey, cfg.R2.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		log.Fatalf("Failed to configure R2 client: %v", err)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2.AccountID)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	return &R2Service{client: client, bucket: cfg.R2.BucketName}
}

// UploadToR2 writes one object under the given key.
func (r *R2Service) UploadToR2(ctx context.Context, key string, file []byte, contentType string) error {
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}
