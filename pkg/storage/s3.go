package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API is the subset of the S3 client used by S3Bucket.
// Abstracted so tests can inject a fake.
type s3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// maxDeleteBatch is the DeleteObjects per-request key limit.
const maxDeleteBatch = 1000

// S3Bucket is a Bucket backed by Amazon S3.
type S3Bucket struct {
	client   s3API
	bucket   string
	prefix   string
	pageSize int32
}

// NewS3 creates an S3Bucket using the default AWS credential chain.
func NewS3(ctx context.Context, bucket, prefix, region, endpoint string, pageSize int) (*S3Bucket, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3WithClient(client, bucket, prefix, pageSize), nil
}

func newS3WithClient(client s3API, bucket, prefix string, pageSize int) *S3Bucket {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Bucket{client: client, bucket: bucket, prefix: prefix, pageSize: int32(pageSize)}
}

// List returns one page of a flat ListObjectsV2 scan. No delimiter is sent,
// so keys at every nesting depth come back in one key space.
func (b *S3Bucket) List(ctx context.Context, prefix, cursor string) (Page, error) {
	in := &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(b.prefix + prefix),
		MaxKeys: aws.Int32(b.pageSize),
	}
	if cursor != "" {
		in.ContinuationToken = aws.String(cursor)
	}

	out, err := b.client.ListObjectsV2(ctx, in)
	if err != nil {
		return Page{}, fmt.Errorf("storage: list s3://%s/%s: %w", b.bucket, b.prefix+prefix, err)
	}

	page := Page{Keys: make([]string, 0, len(out.Contents))}
	for _, obj := range out.Contents {
		key := strings.TrimPrefix(aws.ToString(obj.Key), b.prefix)
		// Zero-byte "folder" placeholders created by the console.
		if key == "" || strings.HasSuffix(key, "/") {
			continue
		}
		page.Keys = append(page.Keys, key)
	}
	if aws.ToBool(out.IsTruncated) {
		page.Next = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

// Get reads the object at key.
func (b *S3Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.prefix + key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, b.bucket, b.prefix+key)
		}
		return nil, fmt.Errorf("storage: get s3://%s/%s: %w", b.bucket, b.prefix+key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("storage: read s3://%s/%s: %w", b.bucket, b.prefix+key, err)
	}
	return data, nil
}

// Put writes body to key.
func (b *S3Bucket) Put(ctx context.Context, key string, body []byte, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.prefix + key),
		Body:   bytes.NewReader(body),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := b.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("storage: put s3://%s/%s: %w", b.bucket, b.prefix+key, err)
	}
	return nil
}

// Delete removes keys in batches of up to 1000 per request.
func (b *S3Bucket) Delete(ctx context.Context, keys ...string) error {
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := start + maxDeleteBatch
		if end > len(keys) {
			end = len(keys)
		}
		ids := make([]s3types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, s3types.ObjectIdentifier{Key: aws.String(b.prefix + k)})
		}
		out, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(b.bucket),
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("storage: delete from s3://%s: %w", b.bucket, err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("storage: delete s3://%s/%s: %s: %s (%d failed)",
				b.bucket, aws.ToString(e.Key), aws.ToString(e.Code), aws.ToString(e.Message), len(out.Errors))
		}
	}
	return nil
}

var _ Bucket = (*S3Bucket)(nil)
