// Package awsutil loads AWS SDK configuration from application settings.
package awsutil

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/target/intake-pipeline/config"
)

// LoadConfig builds an aws.Config for the configured region. Explicit keys
// take precedence over the default credential chain.
func LoadConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.StaticCredentials() {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// BaseEndpoint returns the endpoint override, or nil for the AWS default.
func BaseEndpoint(cfg config.AWSConfig) *string {
	if cfg.Endpoint == "" {
		return nil
	}
	return aws.String(cfg.Endpoint)
}
