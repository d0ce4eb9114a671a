package mainconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	appconfig "github.com/wolfman30/clinicops/internal/config"
)

// sesRetryAttempts bounds SDK retries; the outbox redelivers anything that
// still fails.
const sesRetryAttempts = 3

// LoadAWSConfig builds the SDK config the SES email provider runs on, shared
// by the API and the automation worker.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	if cfg == nil {
		return aws.Config{}, fmt.Errorf("mainconfig: aws: no configuration")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, awsLoadOptions(cfg)...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("mainconfig: aws: %w", err)
	}
	return awsCfg, nil
}

// awsLoadOptions prefers static keys over the default credential chain and
// points every client at AWS_ENDPOINT_OVERRIDE (LocalStack) when set.
func awsLoadOptions(cfg *appconfig.Config) []func(*config.LoadOptions) error {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.AWSRegion),
		config.WithRetryMaxAttempts(sesRetryAttempts),
	}
	key, secret := strings.TrimSpace(cfg.AWSAccessKeyID), strings.TrimSpace(cfg.AWSSecretAccessKey)
	if key != "" && secret != "" {
		opts = append(opts, config.WithCredentialsProvider(
			aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(key, secret, "")),
		))
	}
	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(endpoint))
	}
	return opts
}

// NeedsAWS reports whether email goes out through SES.
func NeedsAWS(cfg *appconfig.Config) bool {
	return cfg != nil && strings.EqualFold(cfg.EmailProvider, "ses")
}
