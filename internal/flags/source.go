package flags

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Source fetches the current flag document from wherever it lives.
type Source interface {
	Fetch(ctx context.Context) (Flags, error)
}

// ObjectGetter is the slice of the S3 API the source needs. *s3.Client
// satisfies it.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads a JSON flag document from an S3 object.
type S3Source struct {
	client ObjectGetter
	bucket string
	key    string
}

// NewS3Source creates a flag source backed by s3://bucket/key.
func NewS3Source(client ObjectGetter, bucket, key string) *S3Source {
	return &S3Source{client: client, bucket: bucket, key: key}
}

// Fetch downloads and parses the flag document.
func (s *S3Source) Fetch(ctx context.Context) (Flags, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return Flags{}, fmt.Errorf("fetching flags from s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Flags{}, fmt.Errorf("reading flags object: %w", err)
	}

	var f Flags
	if err := json.Unmarshal(data, &f); err != nil {
		return Flags{}, fmt.Errorf("parsing flags JSON: %w", err)
	}
	return f, nil
}
