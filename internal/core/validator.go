package core

import (
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"

	"courseflow/internal/types"
)

var hhmmPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Validator wraps go-playground/validator with the domain tags the admin
// request structs use: "hhmm" for wall clock times and "tzname" for IANA
// timezone names.
type Validator struct {
	v *validator.Validate
}

// NewValidator registers the custom tags. Registration errors are impossible
// for non-empty tag names, so they are ignored.
func NewValidator() *Validator {
	v := validator.New()

	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return hhmmPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("tzname", func(fl validator.FieldLevel) bool {
		_, err := time.LoadLocation(fl.Field().String())
		return err == nil
	})

	return &Validator{v: v}
}

// ValidateStruct checks dst against its validate tags. The first violation is
// reported as a 400 AppError naming the offending field and tag.
func (val *Validator) ValidateStruct(dst interface{}) error {
	err := val.v.Struct(dst)
	if err == nil {
		return nil
	}

	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		first := verrs[0]
		appErr := types.NewAppError(
			types.ErrCodeValidationMissingField,
			"request validation failed",
			err,
		)
		if first.Tag() != "required" {
			appErr.Code = types.ErrCodeValidationInvalidRange
			if first.Tag() == "hhmm" {
				appErr.Code = types.ErrCodeValidationInvalidTime
			}
			if first.Tag() == "tzname" {
				appErr.Code = types.ErrCodeValidationInvalidZone
			}
		}
		appErr.Details = map[string]any{
			"field": first.Field(),
			"tag":   first.Tag(),
		}
		return appErr
	}
	return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
}
