package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCustomTags(t *testing.T) {
	v := New()

	assert.NoError(t, v.Var("pk_test_123", "publishable_key"))
	assert.Error(t, v.Var("sk_test_123", "publishable_key"))
	assert.Error(t, v.Var("pk_", "publishable_key"))

	assert.NoError(t, v.Var("src_123", "object_id"))
	assert.Error(t, v.Var("src/../cus", "object_id"))
	assert.Error(t, v.Var("", "object_id"))

	assert.NoError(t, v.Var("/polypay/prod/publishable_key", "ssm_parameter"))
	assert.Error(t, v.Var("polypay", "ssm_parameter"))
}
