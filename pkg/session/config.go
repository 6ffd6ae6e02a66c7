package session

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"gopkg.in/yaml.v3"

	"github.com/pay-theory/ecsbridge/pkg/errors"
)

const (
	// DefaultTimeout bounds every remote call
	DefaultTimeout = 30 * time.Second

	// DefaultMaxConcurrency keeps Describe batches and join lookups sequential
	DefaultMaxConcurrency = 1

	// MinSessionDuration is the shortest session STS issues
	MinSessionDuration = 15 * time.Minute
)

// Config holds the configuration for an ECS bridge
type Config struct {
	AccessKey       string        `yaml:"access_key"`
	SecretKey       string        `yaml:"secret_key"`
	SessionToken    string        `yaml:"session_token"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	RoleARN         string        `yaml:"role_arn"`
	ExternalID      string        `yaml:"external_id"`
	SessionDuration time.Duration `yaml:"session_duration"`
	MaxConcurrency  int           `yaml:"max_concurrency"`
	Timeout         time.Duration `yaml:"timeout"`

	// MaxResponseBytes caps a single ECS response; zero keeps the gateway default
	MaxResponseBytes int64 `yaml:"max_response_bytes"`

	// CredentialsProvider takes precedence over the static keys
	CredentialsProvider aws.CredentialsProvider           `yaml:"-"`
	AWSConfigOptions    []func(*config.LoadOptions) error `yaml:"-"`
	HTTPClient          *http.Client                      `yaml:"-"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Region:         "us-east-1",
		MaxConcurrency: DefaultMaxConcurrency,
		Timeout:        DefaultTimeout,
	}
}

// LoadConfigFile reads a YAML configuration file. Unset values keep their defaults.
func LoadConfigFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrValidation, "config", fmt.Sprintf("invalid config file %s", path), err)
	}
	return cfg, nil
}

// ConfigFromEnv builds a configuration from ECSBRIDGE_* variables, falling back to the standard
// AWS_* variables for credentials and region
func ConfigFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	cfg.AccessKey = env("ECSBRIDGE_ACCESS_KEY", "AWS_ACCESS_KEY_ID")
	cfg.SecretKey = env("ECSBRIDGE_SECRET_KEY", "AWS_SECRET_ACCESS_KEY")
	cfg.SessionToken = env("ECSBRIDGE_SESSION_TOKEN", "AWS_SESSION_TOKEN")
	if region := env("ECSBRIDGE_REGION", "AWS_REGION", "AWS_DEFAULT_REGION"); region != "" {
		cfg.Region = region
	}
	cfg.Endpoint = env("ECSBRIDGE_ENDPOINT")
	cfg.RoleARN = env("ECSBRIDGE_ROLE_ARN")
	cfg.ExternalID = env("ECSBRIDGE_EXTERNAL_ID")

	var err error
	if cfg.SessionDuration, err = envDuration("ECSBRIDGE_SESSION_DURATION", cfg.SessionDuration); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = envDuration("ECSBRIDGE_TIMEOUT", cfg.Timeout); err != nil {
		return nil, err
	}
	if v := env("ECSBRIDGE_MAX_CONCURRENCY"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			return nil, errors.Validation("config", "ECSBRIDGE_MAX_CONCURRENCY must be an integer, got %q", v)
		}
		cfg.MaxConcurrency = n
	}
	return cfg, nil
}

func env(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	v := env(name)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Validation("config", "%s must be a duration, got %q", name, v)
	}
	return d, nil
}

// Validate checks the configuration for missing or inconsistent values
func (c *Config) Validate() error {
	if c.Region == "" {
		return errors.Validation("config", "region is required")
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return errors.Validation("config", "access_key and secret_key must be set together")
	}
	if c.SessionToken != "" && c.AccessKey == "" {
		return errors.Validation("config", "session_token requires access_key and secret_key")
	}
	if c.MaxConcurrency < 0 {
		return errors.Validation("config", "max_concurrency must not be negative")
	}
	if c.Timeout < 0 {
		return errors.Validation("config", "timeout must not be negative")
	}
	if c.MaxResponseBytes < 0 {
		return errors.Validation("config", "max_response_bytes must not be negative")
	}
	if c.SessionDuration != 0 && c.SessionDuration < MinSessionDuration {
		return errors.Validation("config", "session_duration must be at least %s", MinSessionDuration)
	}
	if c.ExternalID != "" && c.RoleARN == "" {
		return errors.Validation("config", "external_id requires role_arn")
	}
	return nil
}
