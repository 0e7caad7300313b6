package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/OFFIS-RIT/kiwi-research/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewS3Client builds a path-style client from the AWS_* environment
// variables, which also works against MinIO and other S3 compatibles.
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	region := util.GetEnvString("AWS_REGION", "us-east-1")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(endpoint))
	}
	if accessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client, nil
}

type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// FileStore keeps uploaded document files in one bucket.
type FileStore struct {
	client  objectAPI
	presign func(ctx context.Context, key string, expires time.Duration) (string, error)
	bucket  string
	newKey  func() (string, error)
}

// NewFileStore wraps client. Download links are signed against
// publicEndpoint when it is set so browsers can follow them.
func NewFileStore(client *s3.Client, bucket string, publicEndpoint string) *FileStore {
	fs := newFileStore(client, bucket)
	fs.presign = func(ctx context.Context, key string, expires time.Duration) (string, error) {
		return presignGet(ctx, client, bucket, publicEndpoint, key, expires)
	}
	return fs
}

func newFileStore(client objectAPI, bucket string) *FileStore {
	return &FileStore{
		client: client,
		bucket: bucket,
		newKey: func() (string, error) { return gonanoid.New() },
	}
}

// PutFile uploads data under prefix with a random name that keeps the
// original extension. It returns the object key.
func (fs *FileStore) PutFile(ctx context.Context, prefix string, name string, data []byte) (string, error) {
	id, err := fs.newKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate file key: %w", err)
	}
	ext := strings.ToLower(path.Ext(name))
	key := fmt.Sprintf("%s/%s%s", strings.TrimSuffix(prefix, "/"), id, ext)

	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = fs.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(fs.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file to S3: %w", err)
	}
	return key, nil
}

func (fs *FileStore) GetFile(ctx context.Context, key string) ([]byte, error) {
	result, err := fs.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get file from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file contents: %w", err)
	}
	return data, nil
}

func (fs *FileStore) DeleteFile(ctx context.Context, key string) error {
	_, err := fs.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}
	return nil
}

// DownloadLink returns a presigned GET url valid for 15 minutes.
func (fs *FileStore) DownloadLink(ctx context.Context, key string) (string, error) {
	if fs.presign == nil {
		return "", fmt.Errorf("download links are not configured")
	}
	return fs.presign(ctx, key, 15*time.Minute)
}

func presignGet(
	ctx context.Context,
	baseClient *s3.Client,
	bucket string,
	publicEndpoint string,
	key string,
	expires time.Duration,
) (string, error) {
	client := baseClient
	prefix := ""
	if publicEndpoint != "" {
		publicURL, err := url.Parse(publicEndpoint)
		if err != nil || publicURL.Scheme == "" || publicURL.Host == "" {
			return "", fmt.Errorf("invalid AWS_PUBLIC_ENDPOINT: %s", publicEndpoint)
		}
		prefix = strings.TrimSuffix(publicURL.Path, "/")

		// The signature covers the Host header, so sign against the public host.
		client = s3.NewFromConfig(
			aws.Config{
				Region:      baseClient.Options().Region,
				Credentials: baseClient.Options().Credentials,
				HTTPClient:  baseClient.Options().HTTPClient,
			},
			func(o *s3.Options) {
				o.BaseEndpoint = aws.String(fmt.Sprintf("%s://%s", publicURL.Scheme, publicURL.Host))
				o.UsePathStyle = true
			},
		)
	}

	out, err := s3.NewPresignClient(client).PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(expires),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate download link: %w", err)
	}

	if prefix == "" {
		return out.URL, nil
	}
	signedURL, err := url.Parse(out.URL)
	if err != nil {
		return "", fmt.Errorf("failed to parse presigned url: %w", err)
	}
	signedURL.Path = prefix + signedURL.Path
	return signedURL.String(), nil
}
