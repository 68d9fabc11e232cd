package http_utils

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Action string `validate:"required,oneof=move sync"`
	Move   string `validate:"max=4"`
}

func TestValidateStruct(t *testing.T) {
	v := validator.New()

	_, ok := ValidateStruct(v, sample{Action: "move", Move: "e2e4"})
	require.True(t, ok)

	res, ok := ValidateStruct(v, sample{Action: "jump", Move: "e7e8q!"})
	require.False(t, ok)
	require.False(t, res.Success)
	require.Equal(t, []string{
		"Action failed on oneof=move sync",
		"Move failed on max=4",
	}, res.Errors)
}

func TestValidationErrorsPlainError(t *testing.T) {
	require.Equal(t, []string{"boom"}, ValidationErrors(errors.New("boom")))
}

func TestNewDataResponse(t *testing.T) {
	res := NewDataResponse("room", 42)
	require.True(t, res.Success)
	require.Equal(t, "room", res.Message)
	require.Equal(t, 42, res.Data)
}
