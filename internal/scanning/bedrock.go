package scanning

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const (
	DefaultBedrockRegion = "us-east-1"
	DefaultBedrockModel  = "anthropic.claude-3-5-sonnet-20240620-v1:0"
)

// Bedrock implements ModelClient using Amazon Bedrock InvokeModel
type Bedrock struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrock creates a Bedrock client. Credentials and, when region is empty,
// the region come from the default AWS configuration chain. The SDK's own
// retries are disabled.
func NewBedrock(ctx context.Context, region, modelID string) (*Bedrock, error) {
	opts := []func(*config.LoadOptions) error{config.WithRetryMaxAttempts(1)}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = DefaultBedrockRegion
	}

	return newBedrockFromConfig(cfg, modelID), nil
}

func newBedrockFromConfig(cfg aws.Config, modelID string, optFns ...func(*bedrockruntime.Options)) *Bedrock {
	if modelID == "" {
		modelID = DefaultBedrockModel
	}
	return &Bedrock{
		client:  bedrockruntime.NewFromConfig(cfg, optFns...),
		modelID: modelID,
	}
}

// Invoke sends the request body as-is and returns the response body
func (b *Bedrock) Invoke(ctx context.Context, request []byte) ([]byte, error) {
	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        request,
	})
	if err != nil {
		return nil, fmt.Errorf("invoking bedrock model %s: %w", b.modelID, err)
	}
	return out.Body, nil
}

// Close releases nothing; the SDK client holds no resources
func (b *Bedrock) Close() error {
	return nil
}
