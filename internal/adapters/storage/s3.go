// Package storage persists generated artifacts in S3 or on local disk.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/target/intake-pipeline/config"
	"github.com/target/intake-pipeline/internal/core"
	apperrors "github.com/target/intake-pipeline/internal/errors"
	"github.com/target/intake-pipeline/internal/pkg/awsutil"
)

// PutAPI is the subset of the S3 client used for uploads.
type PutAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// PresignAPI is the subset of the S3 presign client used for download URLs.
type PresignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3StoreOptions groups dependencies for S3Store.
type S3StoreOptions struct {
	Config config.StorageConfig // Required: Bucket must be set
	AWS    config.AWSConfig     // Used when Client is nil
	// Optional clients; both are built from AWS when Client is nil.
	Client    PutAPI
	Presigner PresignAPI
	Logger    *slog.Logger
}

// S3Store uploads objects to a bucket and returns a public or presigned URL.
type S3Store struct {
	client        PutAPI
	presigner     PresignAPI
	bucket        string
	prefix        string
	publicBaseURL string
	presignTTL    time.Duration
	timeout       time.Duration
	logger        *slog.Logger
}

var _ core.ObjectStore = (*S3Store)(nil)

// NewS3Store creates an S3Store.
func NewS3Store(ctx context.Context, opts S3StoreOptions) (*S3Store, error) {
	cfg := opts.Config
	cfg.Sanitize()
	if !cfg.Enabled() {
		return nil, errors.New("storage bucket is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, presigner := opts.Client, opts.Presigner
	if client == nil {
		awsCfg, err := awsutil.LoadConfig(ctx, opts.AWS)
		if err != nil {
			return nil, err
		}
		endpoint := awsutil.BaseEndpoint(opts.AWS)
		s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if endpoint != nil {
				o.BaseEndpoint = endpoint
			}
			o.UsePathStyle = cfg.UsePathStyle
		})
		client = s3Client
		if presigner == nil {
			presigner = s3.NewPresignClient(s3Client)
		}
	}
	if presigner == nil && cfg.PublicBaseURL == "" {
		return nil, errors.New("presigner is required without a public base URL")
	}

	return &S3Store{
		client:        client,
		presigner:     presigner,
		bucket:        cfg.Bucket,
		prefix:        cfg.Prefix,
		publicBaseURL: cfg.PublicBaseURL,
		presignTTL:    cfg.PresignTTL,
		timeout:       cfg.Timeout,
		logger:        logger.With("component", "storage", "bucket", cfg.Bucket),
	}, nil
}

// Store implements core.ObjectStore. Keys are placed under the configured prefix.
func (s *S3Store) Store(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return "", err
	}

	putCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err = s.client.PutObject(putCtx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", apperrors.Transient(err, "upload "+objectKey)
	}

	objectURL, err := s.url(ctx, objectKey)
	if err != nil {
		return "", err
	}
	s.logger.DebugContext(ctx, "object stored", "key", objectKey, "bytes", len(body))
	return objectURL, nil
}

func (s *S3Store) objectKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" || strings.Contains(key, "..") {
		return "", apperrors.Terminal(nil, fmt.Sprintf("invalid object key %q", key))
	}
	return s.prefix + key, nil
}

func (s *S3Store) url(ctx context.Context, objectKey string) (string, error) {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + escapeKey(objectKey), nil
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return "", apperrors.Transient(err, "presign "+objectKey)
	}
	return req.URL, nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
