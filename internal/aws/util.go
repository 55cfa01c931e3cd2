package aws

import (
	"context"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"net/http"
	"tee/trusted-ops/internal/transport"
	signerTypes "tee/trusted-ops/internal/types"
	"time"
)

// SDKConfig loads an AWS config for region. Static credentials replace the default
// chain when given; a vsock connection config routes every SDK call through the proxy.
func SDKConfig(ctx context.Context, region string, staticCredentials *signerTypes.AWSCredentials, connectionConfig transport.ConnectionConfig) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if staticCredentials != nil {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			staticCredentials.AccessKeyID, staticCredentials.SecretAccessKey, staticCredentials.Token)))
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	cfg.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	// replace dialer with vsock based approach if required, else rely on standard http dial out
	if connectionConfig.Type() == transport.VSOCK {
		cfg.HTTPClient = &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				DialContext: connectionConfig.DialContext,
			},
		}
	}

	return cfg, nil
}
