package validator

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// userIDPattern enforces the user-id charset restriction from the purchase
// core's contract: non-empty, [A-Za-z0-9_-] only. The 255-character length
// limit is enforced separately by the max=255 tag.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// New creates a new validator instance with custom validations registered.
// This ensures consistent validation across the application and tests.
func New() *validator.Validate {
	v := validator.New()

	// Register custom "notblank" validator - rejects whitespace-only strings
	// This is used for fields like sale/order identifiers that must have meaningful content
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return true // Not a string, let other validators handle it
		}
		return strings.TrimSpace(str) != ""
	})

	// Register custom "alphanumdash" validator - restricts user_id to the
	// charset the admission pipeline relies on as an invariant.
	_ = v.RegisterValidation("alphanumdash", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return true
		}
		return userIDPattern.MatchString(str)
	})

	return v
}
