// Package awsconf centralizes AWS SDK configuration loading so every client
// (DynamoDB, SQS, EventBridge, S3, SES, SNS) is built from the same credential
// chain. A named profile is only honored outside ECS/Lambda; on AWS compute the
// task/function role is used.
package awsconf

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// Load builds an aws.Config for the given region. An empty profile uses the
// default credential chain (env vars, shared config, IAM role).
func Load(ctx context.Context, region, profile string) (aws.Config, error) {
	var cfg aws.Config
	var err error

	if profile != "" {
		cfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(region),
			config.WithSharedConfigProfile(profile),
		)
	} else {
		cfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(region),
		)
	}
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}

	return cfg, nil
}
