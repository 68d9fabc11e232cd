package util

import (
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var Validate *validator.Validate

// InitValidator sets up the shared validator and registers the custom tags
// used by config and websocket frames.
func InitValidator() {
	Validate = validator.New()

	Validate.RegisterValidation("roomid", func(fl validator.FieldLevel) bool {
		return ValidRoomID(fl.Field().String())
	})
}

func init() {
	InitValidator()
}

// ValidRoomID reports whether id can be used as a room key.
func ValidRoomID(id string) bool {
	if id == "" || len(id) > MaxRoomIDLength {
		return false
	}

	return strings.IndexFunc(id, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) < 0
}
