package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hwonboard/earlychecks/pkg/errors"
)

// Client provides S3 storage operations for firmware catalog manifests
type Client struct {
	s3Client *s3.Client
	bucket   string
}

// Options tunes the S3 client. The zero value talks to AWS anonymously.
type Options struct {
	// Endpoint points the client at an S3 compatible store.
	Endpoint string
}

// NewClient creates a new S3 client for anonymous access
func NewClient(ctx context.Context, bucket, region string, opts Options) (*Client, error) {
	slog.Info("s3_client_init", "bucket", bucket, "region", region, "endpoint", opts.Endpoint)

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	slog.Info("s3_client_created", "bucket", bucket)

	return &Client{
		s3Client: s3Client,
		bucket:   bucket,
	}, nil
}

// Bucket returns the bucket the client reads from
func (c *Client) Bucket() string {
	return c.bucket
}

// FetchResult contains an object body and its metadata
type FetchResult struct {
	Key    string
	Body   []byte
	SHA256 string
	Size   int64
}

// Fetch reads an object into memory and computes its SHA256. Objects larger
// than maxSize are rejected without being read in full.
func (c *Client) Fetch(ctx context.Context, key string, maxSize int64) (*FetchResult, error) {
	slog.Info("s3_fetch_start", "bucket", c.bucket, "s3_key", key)

	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Error("s3_get_object_failed", "s3_key", key, "error", err)
		return nil, errors.Wrap(err, "failed to get object from S3")
	}
	defer result.Body.Close()

	if result.ContentLength != nil && maxSize > 0 && *result.ContentLength > maxSize {
		slog.Error("s3_object_too_large", "s3_key", key, "size", *result.ContentLength, "max_size", maxSize)
		return nil, fmt.Errorf("object %s is %d bytes, max %d", key, *result.ContentLength, maxSize)
	}

	return readObject(key, result.Body, maxSize)
}

func readObject(key string, body io.Reader, maxSize int64) (*FetchResult, error) {
	if maxSize > 0 {
		body = io.LimitReader(body, maxSize+1)
	}

	hash := sha256.New()
	data, err := io.ReadAll(io.TeeReader(body, hash))
	if err != nil {
		slog.Error("s3_fetch_failed", "s3_key", key, "error", err)
		return nil, errors.Wrap(err, "failed to read object")
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		slog.Error("s3_object_too_large", "s3_key", key, "max_size", maxSize)
		return nil, fmt.Errorf("object %s exceeds max size %d", key, maxSize)
	}

	checksum := hex.EncodeToString(hash.Sum(nil))
	slog.Info("s3_fetch_complete", "s3_key", key, "size", len(data), "sha256", checksum[:16]+"...")

	return &FetchResult{
		Key:    key,
		Body:   data,
		SHA256: checksum,
		Size:   int64(len(data)),
	}, nil
}

// ListObjects lists all objects in the bucket with a given prefix
func (c *Client) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	slog.Info("s3_list_start", "bucket", c.bucket, "prefix", prefix)

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, input)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			slog.Error("s3_list_failed", "prefix", prefix, "error", err)
			return nil, errors.Wrap(err, "failed to list objects")
		}

		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}

	slog.Info("s3_list_complete", "prefix", prefix, "object_count", len(keys))

	return keys, nil
}

// Exists checks if an object exists in S3
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})

	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			slog.Info("s3_object_not_found", "s3_key", key)
			return false, nil
		}
		slog.Error("s3_head_object_failed", "s3_key", key, "error", err)
		return false, errors.Wrap(err, "failed to check object existence")
	}

	slog.Info("s3_object_exists", "s3_key", key)
	return true, nil
}
