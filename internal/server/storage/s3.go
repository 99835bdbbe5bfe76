package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ipsvault/ips/internal/common"
	"github.com/ipsvault/ips/internal/server/config"
)

// objectAPI is the part of *s3.Client the backend uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectAPI {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

const s3KeyPrefix = "resources/"

// S3 stores blobs in an S3-compatible bucket (MinIO in development).
type S3 struct {
	client objectAPI
	bucket string
	tmpDir string
}

func NewS3(ctx context.Context, c *config.Config) (*S3, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(c.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.S3RootUser,
			c.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(c.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3{client: client, bucket: c.S3Bucket, tmpDir: c.TempDir}, nil
}

func (s *S3) objectKey(key string) (*string, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return aws.String(s3KeyPrefix + key), nil
}

// Put spools r to a temp file to learn its size and digest, then uploads the
// seekable file.
func (s *S3) Put(ctx context.Context, key string, r io.Reader) (int64, string, error) {
	k, err := s.objectKey(key)
	if err != nil {
		return 0, "", err
	}

	if s.tmpDir != "" {
		if err := os.MkdirAll(s.tmpDir, 0o770); err != nil {
			return 0, "", fmt.Errorf("spool dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(s.tmpDir, "s3-spool-*")
	if err != nil {
		return 0, "", fmt.Errorf("spool: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	hw := newHashingWriter()
	if _, err := io.Copy(io.MultiWriter(tmp, hw), &ctxReader{ctx: ctx, r: r}); err != nil {
		return 0, "", fmt.Errorf("spool: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return 0, "", fmt.Errorf("spool: %w", err)
	}

	sum := hw.Sum()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           k,
		Body:          tmp,
		ContentLength: aws.Int64(hw.n),
		Metadata:      map[string]string{"sha256": sum},
	})
	if err != nil {
		return 0, "", fmt.Errorf("put object: %w", err)
	}
	return hw.n, sum, nil
}

func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	k, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: k})
	if err != nil {
		if isS3NotFound(err) {
			return nil, common.ErrorBlobMissing
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	return out.Body, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	k, err := s.objectKey(key)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: k}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	k, err := s.objectKey(key)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: k})
	if err == nil {
		return true, nil
	}
	if isS3NotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head object: %w", err)
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}
