package http_utils

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// ValidateStruct runs v against s. ok is false when validation failed, in
// which case the response lists every failing field.
func ValidateStruct(v *validator.Validate, s interface{}) (response ValidationErrorResponse, ok bool) {
	err := v.Struct(s)
	if err == nil {
		return ValidationErrorResponse{}, true
	}

	return ValidationErrorResponse{
		BaseResponse: BaseResponse{
			Success: false,
			Message: "validation failed",
		},
		Errors: ValidationErrors(err),
	}, false
}

// ValidationErrors flattens validator errors into readable messages.
func ValidationErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	return lo.Map(verrs, func(item validator.FieldError, index int) string {
		if item.Param() != "" {
			return item.Field() + " failed on " + item.Tag() + "=" + item.Param()
		}
		return item.Field() + " failed on " + item.Tag()
	})
}
