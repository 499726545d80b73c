package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/desertthunder/tracklift/internal/shared"
)

// maxDeleteBatch is the most keys a single DeleteObjects call accepts.
const maxDeleteBatch = 1000

// S3API is the subset of the S3 client used by [S3Store].
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, opts ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store stores objects in an S3 compatible bucket.
type S3Store struct {
	client    S3API
	bucket    string
	publicURL string
}

// NewS3Store loads AWS configuration and builds a client for cfg.
//
// Static keys from cfg take precedence over the default credential chain. A custom endpoint
// switches the client to path-style addressing so MinIO and R2 work.
func NewS3Store(ctx context.Context, cfg shared.StorageConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: storage.bucket is required for the s3 backend", shared.ErrInvalidConfig)
	}

	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	publicURL := cfg.PublicURL
	if publicURL == "" {
		switch {
		case cfg.Endpoint != "":
			publicURL = joinURL(cfg.Endpoint, cfg.Bucket)
		default:
			publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, awsCfg.Region)
		}
	}

	return NewS3StoreWithClient(client, cfg.Bucket, publicURL), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client S3API, bucket, publicURL string) *S3Store {
	return &S3Store{client: client, bucket: bucket, publicURL: publicURL}
}

func (s *S3Store) Upload(ctx context.Context, localPath, folder, filename string) (Object, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return Object{}, fmt.Errorf("%w: %v", shared.ErrUpload, err)
	}
	defer file.Close()

	key := ObjectKey(folder, filename, filepath.Ext(localPath))
	return s.put(ctx, key, file, ContentType(key))
}

func (s *S3Store) UploadBytes(ctx context.Context, data []byte, folder, filename, contentType string) (Object, error) {
	key := ObjectKey(folder, filename, "")
	if contentType == "" {
		contentType = ContentType(key)
	}
	return s.put(ctx, key, bytes.NewReader(data), contentType)
}

func (s *S3Store) UploadDir(ctx context.Context, dir, prefix string) ([]Object, error) {
	var uploaded []Object

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		key, err := relativeKey(prefix, dir, p)
		if err != nil {
			return err
		}

		file, err := os.Open(p)
		if err != nil {
			return err
		}
		defer file.Close()

		obj, err := s.put(ctx, key, file, ContentType(key))
		if err != nil {
			return err
		}
		uploaded = append(uploaded, obj)
		return nil
	})
	if err != nil {
		return uploaded, fmt.Errorf("%w: %s: %v", shared.ErrUpload, dir, err)
	}

	return uploaded, nil
}

// Delete removes one key, or lists and batch-deletes everything under a prefix.
func (s *S3Store) Delete(ctx context.Context, keyOrPrefix string) error {
	if !IsPrefix(keyOrPrefix) {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(keyOrPrefix),
		})
		if err != nil {
			return fmt.Errorf("failed to delete %s: %w", keyOrPrefix, err)
		}
		return nil
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(keyOrPrefix),
	})

	var batch []types.ObjectIdentifier
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", keyOrPrefix, err)
		}

		for _, obj := range page.Contents {
			batch = append(batch, types.ObjectIdentifier{Key: obj.Key})
			if len(batch) == maxDeleteBatch {
				if err := s.deleteBatch(ctx, batch); err != nil {
					return err
				}
				batch = batch[:0]
			}
		}
	}

	if len(batch) > 0 {
		return s.deleteBatch(ctx, batch)
	}
	return nil
}

func (s *S3Store) URL(key string) string {
	return joinURL(s.publicURL, key)
}

func (s *S3Store) deleteBatch(ctx context.Context, batch []types.ObjectIdentifier) error {
	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{Objects: batch, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("failed to delete objects: %w", err)
	}
	if len(out.Errors) > 0 {
		first := out.Errors[0]
		return fmt.Errorf("failed to delete %d objects, first %s: %s",
			len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
	}
	return nil
}

func (s *S3Store) put(ctx context.Context, key string, body io.Reader, contentType string) (Object, error) {
	var size int64
	if sized, ok := body.(interface{ Stat() (os.FileInfo, error) }); ok {
		if info, err := sized.Stat(); err == nil {
			size = info.Size()
		}
	} else if r, ok := body.(*bytes.Reader); ok {
		size = r.Size()
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return Object{}, fmt.Errorf("%w: %s: %v", shared.ErrUpload, key, err)
	}

	return Object{Key: key, URL: s.URL(key), Size: size}, nil
}
