package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const s3MetaChecksum = "checksum"

// s3API is the subset of the S3 client the backend uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config configures the S3 backend. Credentials come from the default AWS
// chain (environment, shared config, instance role).
type S3Config struct {
	Bucket string
	Region string
	Prefix string
}

// S3 stores payloads as objects under <prefix>/<user>/<key>.
type S3 struct {
	client s3API
	bucket string
	prefix string
}

func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newS3(s3.NewFromConfig(awsCfg), cfg), nil
}

func newS3(client s3API, cfg S3Config) *S3 {
	return &S3{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}
}

func (s *S3) Store(ctx context.Context, userID, key string, payload []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(userID, key)),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("text/csv"),
		Metadata:    map[string]string{s3MetaChecksum: Checksum(payload)},
	})
	if err != nil {
		return syncErr("s3 put", err)
	}
	return nil
}

func (s *S3) Fetch(ctx context.Context, userID, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(userID, key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, syncErr("s3 get", err)
	}
	defer out.Body.Close()

	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, syncErr("s3 read", err)
	}
	if err := verify(payload, out.Metadata[s3MetaChecksum]); err != nil {
		return nil, err
	}
	return payload, nil
}

// objectKey escapes the user ID so it cannot introduce extra path segments.
func (s *S3) objectKey(userID, key string) string {
	return path.Join(s.prefix, url.PathEscape(userID), key)
}
