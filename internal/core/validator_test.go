package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courseflow/internal/types"
)

type sampleRequest struct {
	Time     string `validate:"required,hhmm"`
	Timezone string `validate:"omitempty,tzname"`
	Day      int    `validate:"min=1"`
}

func TestValidator_Valid(t *testing.T) {
	v := NewValidator()
	err := v.ValidateStruct(sampleRequest{Time: "09:30", Timezone: "Europe/Moscow", Day: 1})
	assert.NoError(t, err)
}

func TestValidator_MissingRequired(t *testing.T) {
	v := NewValidator()
	err := v.ValidateStruct(sampleRequest{Day: 1})

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
	assert.Equal(t, "Time", appErr.Details["field"])
}

func TestValidator_BadTime(t *testing.T) {
	v := NewValidator()
	for _, bad := range []string{"25:00", "9:30", "10:70", "nope"} {
		err := v.ValidateStruct(sampleRequest{Time: bad, Day: 1})

		var appErr *types.AppError
		require.True(t, errors.As(err, &appErr), "time %q should be rejected", bad)
		assert.Equal(t, types.ErrCodeValidationInvalidTime, appErr.Code)
	}
}

func TestValidator_BadTimezone(t *testing.T) {
	v := NewValidator()
	err := v.ValidateStruct(sampleRequest{Time: "09:30", Timezone: "Mars/Olympus", Day: 1})

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationInvalidZone, appErr.Code)
}

func TestValidator_OutOfRange(t *testing.T) {
	v := NewValidator()
	err := v.ValidateStruct(sampleRequest{Time: "09:30", Day: 0})

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationInvalidRange, appErr.Code)
}
