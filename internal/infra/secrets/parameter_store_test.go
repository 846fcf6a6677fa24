package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	values map[string]string
	calls  int
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls++
	if !aws.ToBool(in.WithDecryption) {
		return nil, errors.New("decryption not requested")
	}
	v, ok := f.values[aws.ToString(in.Name)]
	if !ok {
		return nil, &types.ParameterNotFound{Message: aws.String("not found")}
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String(v)}}, nil
}

func TestResolvePublishableKey(t *testing.T) {
	fake := &fakeSSM{values: map[string]string{
		"/polypay/test/publishable_key": "pk_test_from_ssm\n",
		"/polypay/test/wrong":           "sk_test_oops",
	}}
	store := NewParameterStoreWithClient(fake)
	ctx := context.Background()

	key, err := ResolvePublishableKey(ctx, store, "pk_test_inline", "/polypay/test/publishable_key")
	require.NoError(t, err)
	assert.Equal(t, "pk_test_inline", key)
	assert.Zero(t, fake.calls)

	key, err = ResolvePublishableKey(ctx, store, "", "/polypay/test/publishable_key")
	require.NoError(t, err)
	assert.Equal(t, "pk_test_from_ssm", key)

	_, err = ResolvePublishableKey(ctx, store, "", "/polypay/test/wrong")
	assert.ErrorContains(t, err, "does not hold a publishable key")

	_, err = ResolvePublishableKey(ctx, store, "", "/polypay/test/missing")
	var notFound *types.ParameterNotFound
	assert.ErrorAs(t, err, &notFound)

	_, err = ResolvePublishableKey(ctx, store, "", "")
	assert.ErrorIs(t, err, ErrNoPublishableKey)
}

func TestGetSecretRejectsEmptyName(t *testing.T) {
	_, err := NewParameterStoreWithClient(&fakeSSM{}).GetSecret(context.Background(), "")
	assert.Error(t, err)
}
