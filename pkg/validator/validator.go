package validator

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	objectIDRegex     = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	ssmParameterRegex = regexp.MustCompile(`^/[A-Za-z0-9_.\-/]+$`)
)

// isPublishableKey accepts pk_test_ and pk_live_ keys.
func isPublishableKey(fl validator.FieldLevel) bool {
	key := fl.Field().String()
	return strings.HasPrefix(key, "pk_") && len(key) > len("pk_")
}

// isObjectID accepts platform object ids such as src_123 or cus_abc.
func isObjectID(fl validator.FieldLevel) bool {
	return objectIDRegex.MatchString(fl.Field().String())
}

// isSSMParameter checks for a fully qualified Parameter Store name.
func isSSMParameter(fl validator.FieldLevel) bool {
	return ssmParameterRegex.MatchString(fl.Field().String())
}

// RegisterCustomValidators registers the polypay validation tags.
func RegisterCustomValidators(validate *validator.Validate) error {
	for tag, fn := range map[string]validator.Func{
		"publishable_key": isPublishableKey,
		"object_id":       isObjectID,
		"ssm_parameter":   isSSMParameter,
	} {
		if err := validate.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}

// New returns a validator with the custom tags registered.
func New() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(validate); err != nil {
		panic(err)
	}
	return validate
}
