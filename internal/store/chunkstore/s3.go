package chunkstore

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/arx-os/datakernel-cube/pkg/cubeerr"
)

// S3Config mirrors internal/storage/s3.go's S3Config: region/bucket plus an
// optional explicit credential pair and a custom endpoint for S3-compatible
// services (MinIO, etc).
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

// S3ChunkStore stores chunk blobs as S3 objects keyed by the aggregation's
// storage key, grounded on internal/storage/s3.go's S3Backend.
type S3ChunkStore struct {
	client *s3.Client
	bucket string
}

// NewS3ChunkStore builds an S3 client from cfg following the same
// explicit-credentials-else-default-chain precedence as the teacher's
// S3Backend constructor.
func NewS3ChunkStore(ctx context.Context, cfg S3Config) (*S3ChunkStore, error) {
	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, cubeerr.Wrap(cubeerr.KindStore, "loading AWS config for chunk store", err)
	}

	var opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return &S3ChunkStore{client: s3.NewFromConfig(awsCfg, opts...), bucket: cfg.Bucket}, nil
}

func (b *S3ChunkStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return cubeerr.Wrap(cubeerr.KindStore, "putting chunk object "+key, err)
	}
	return nil
}

func (b *S3ChunkStore) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, cubeerr.Wrap(cubeerr.KindStore, "getting chunk object "+key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, cubeerr.Wrap(cubeerr.KindStore, "reading chunk object body", err)
	}
	return data, nil
}

func (b *S3ChunkStore) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return cubeerr.Wrap(cubeerr.KindStore, "deleting chunk object "+key, err)
	}
	return nil
}
