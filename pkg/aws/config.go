package aws

import (
	"context"
	"fmt"
	"os"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// localRegion is used against LocalStack when no region is configured.
const localRegion = "us-east-1"

// LoadAWSConfig loads the default credential chain and region. AWS_ENDPOINT
// overrides the base endpoint of every client, which is how LocalStack is
// targeted in development and tests.
func LoadAWSConfig(ctx context.Context) (sdkaws.Config, error) {
	return loadAWSConfig(ctx, os.Getenv)
}

func loadAWSConfig(ctx context.Context, getenv func(string) string) (sdkaws.Config, error) {
	var opts []func(*config.LoadOptions) error

	if endpoint := getenv("AWS_ENDPOINT"); endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(endpoint))
		if getenv("AWS_REGION") == "" && getenv("AWS_DEFAULT_REGION") == "" {
			opts = append(opts, config.WithRegion(localRegion))
		}
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return cfg, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}
