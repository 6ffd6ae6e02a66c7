package session

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"
)

// DefaultSessionDuration is used when no session duration is configured
const DefaultSessionDuration = time.Hour

// newSTSClient is a variable to allow replacing the STS client in tests
var newSTSClient = func(cfg aws.Config) stscreds.AssumeRoleAPIClient {
	return sts.NewFromConfig(cfg)
}

// AssumeRoleProvider returns cached credentials for cfg.RoleARN, assumed with the base
// configuration's credentials
func AssumeRoleProvider(base aws.Config, cfg *Config) aws.CredentialsProvider {
	duration := cfg.SessionDuration
	if duration == 0 {
		duration = DefaultSessionDuration
	}

	provider := stscreds.NewAssumeRoleProvider(newSTSClient(base), cfg.RoleARN, func(o *stscreds.AssumeRoleOptions) {
		if cfg.ExternalID != "" {
			o.ExternalID = aws.String(cfg.ExternalID)
		}
		o.RoleSessionName = "ecsbridge-" + uuid.NewString()
		o.Duration = duration
	})

	return aws.NewCredentialsCache(provider)
}
