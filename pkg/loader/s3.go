package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Loader reads <Prefix><name>.graph.bin objects from an S3-compatible
// bucket.
type S3Loader struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Loader creates an S3 loader. If endpoint is non-empty, path-style
// addressing is enabled (for MinIO and similar).
func NewS3Loader(ctx context.Context, bucket, prefix, region, endpoint string) (*S3Loader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Loader{
		client: s3.NewFromConfig(cfg, s3opts...),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Key returns the object key for a dataset name.
func (l *S3Loader) Key(name string) string {
	return l.prefix + name + FileSuffix
}

func (l *S3Loader) Load(ctx context.Context, name string, sink ProgressSink) (*Loaded, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: %q", ErrGraphNotFound, name)
	}

	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(l.Key(name)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrGraphNotFound, name)
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer out.Body.Close()

	return decode(ctx, name, out.Body, aws.ToInt64(out.ContentLength), sink)
}
