// Package awsconf builds the AWS clients used by the lakecat adapters.
package awsconf

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig holds configuration for creating Glue and S3 clients.
type ClientConfig struct {
	// Region is the AWS region (required).
	Region string

	// Endpoint is an optional custom endpoint URL shared by both services.
	// Example: "http://localhost:4566" for LocalStack.
	Endpoint string

	// UsePathStyle enables path-style S3 addressing instead of
	// virtual-hosted style. Required for LocalStack and MinIO.
	UsePathStyle bool

	// Credentials are the AWS credentials to use.
	// If nil, uses the default credential chain.
	Credentials aws.CredentialsProvider
}

// StaticCredentials returns a provider for fixed keys, or nil when
// accessKeyID is empty so the default chain applies.
func StaticCredentials(accessKeyID, secretAccessKey, sessionToken string) aws.CredentialsProvider {
	if accessKeyID == "" {
		return nil
	}
	return credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, sessionToken)
}

// LocalStack returns the configuration of a default LocalStack container:
// endpoint http://localhost:4566, region us-east-1, credentials test/test.
func LocalStack() ClientConfig {
	return ClientConfig{
		Region:       "us-east-1",
		Endpoint:     "http://localhost:4566",
		UsePathStyle: true,
		Credentials:  StaticCredentials("test", "test", ""),
	}
}

// Load resolves the shared AWS configuration.
func Load(ctx context.Context, cfg ClientConfig) (aws.Config, error) {
	if cfg.Region == "" {
		return aws.Config{}, errors.New("awsconf: region is required")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.Credentials != nil {
		opts = append(opts, config.WithCredentialsProvider(cfg.Credentials))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

// Clients holds the service clients built from one configuration.
type Clients struct {
	// Config is the resolved shared configuration, for consumers outside
	// the SDK such as a DuckDB S3 session.
	Config aws.Config

	S3   *s3.Client
	Glue *glue.Client
}

// NewClients creates S3 and Glue clients with the given configuration.
//
// For AWS:
//
//	clients, err := awsconf.NewClients(ctx, awsconf.ClientConfig{Region: "us-east-1"})
//
// For LocalStack:
//
//	clients, err := awsconf.NewClients(ctx, awsconf.LocalStack())
func NewClients(ctx context.Context, cfg ClientConfig) (*Clients, error) {
	awsCfg, err := Load(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s3Opts := []func(*s3.Options){}
	glueOpts := []func(*glue.Options){}

	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
		glueOpts = append(glueOpts, func(o *glue.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Clients{
		Config: awsCfg,
		S3:     s3.NewFromConfig(awsCfg, s3Opts...),
		Glue:   glue.NewFromConfig(awsCfg, glueOpts...),
	}, nil
}
