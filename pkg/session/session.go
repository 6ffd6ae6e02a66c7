// Package session provides AWS credential and HTTP client configuration for the bridge
package session

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// configLoadFunc is a variable to allow mocking config.LoadDefaultConfig in tests
var configLoadFunc = config.LoadDefaultConfig

// Session holds the resolved AWS configuration shared by the ECS gateway and the instance bridge
type Session struct {
	config     *Config
	awsConfig  aws.Config
	httpClient *http.Client
}

// NewSession resolves credentials and builds the shared HTTP client. Retries are disabled: every
// failure is reported to the caller as is.
func NewSession(ctx context.Context, cfg *Config) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	options := make([]func(*config.LoadOptions) error, 0, len(cfg.AWSConfigOptions)+4)
	options = append(options, config.WithRegion(cfg.Region))

	switch {
	case cfg.CredentialsProvider != nil:
		options = append(options, config.WithCredentialsProvider(cfg.CredentialsProvider))
	case cfg.AccessKey != "":
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		))
	}

	options = append(options, config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }))
	options = append(options, config.WithHTTPClient(httpClient))
	options = append(options, cfg.AWSConfigOptions...)

	awsConfig, err := configLoadFunc(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.RoleARN != "" {
		awsConfig.Credentials = AssumeRoleProvider(awsConfig, cfg)
	}

	return &Session{
		config:     cfg,
		awsConfig:  awsConfig,
		httpClient: httpClient,
	}, nil
}

// Config returns the session configuration
func (s *Session) Config() *Config {
	return s.config
}

// AWSConfig returns the AWS configuration
func (s *Session) AWSConfig() aws.Config {
	return s.awsConfig
}

// Credentials returns the credentials provider used to sign requests
func (s *Session) Credentials() aws.CredentialsProvider {
	return s.awsConfig.Credentials
}

// Region returns the resolved region
func (s *Session) Region() string {
	return s.awsConfig.Region
}

// HTTPClient returns the HTTP client shared by every remote call
func (s *Session) HTTPClient() *http.Client {
	return s.httpClient
}
