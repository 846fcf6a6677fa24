package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ErrNoPublishableKey means neither an inline key nor a parameter name was configured.
var ErrNoPublishableKey = errors.New("no publishable key configured")

// ParameterAPI is the part of the SSM client the store uses.
type ParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type ParameterStore struct {
	client ParameterAPI
}

func NewParameterStore(cfg aws.Config) *ParameterStore {
	return &ParameterStore{client: ssm.NewFromConfig(cfg)}
}

func NewParameterStoreWithClient(client ParameterAPI) *ParameterStore {
	return &ParameterStore{client: client}
}

// LoadAWSConfig resolves credentials the usual way; region may be empty to
// fall back to the environment.
func LoadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

func (ps *ParameterStore) GetSecret(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name cannot be empty")
	}

	result, err := ps.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", name, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", name)
	}
	return strings.TrimSpace(*result.Parameter.Value), nil
}

// SecretGetter fetches a named secret.
type SecretGetter interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// ResolvePublishableKey returns inline when set, otherwise the value of the
// named parameter.
func ResolvePublishableKey(ctx context.Context, store SecretGetter, inline, parameter string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	if parameter == "" {
		return "", ErrNoPublishableKey
	}
	if store == nil {
		return "", fmt.Errorf("publishable key parameter %s set but no parameter store available", parameter)
	}
	key, err := store.GetSecret(ctx, parameter)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(key, "pk_") {
		return "", fmt.Errorf("parameter %s does not hold a publishable key", parameter)
	}
	return key, nil
}
