package flow

import "strings"

// Validation messages.
const (
	MsgEnterName = "Enter your name"
	MsgSelectAge = "Select your age range"
)

// validateName trims raw and rejects it when nothing is left.
func validateName(raw string) (string, *FormError) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fieldError("name", MsgEnterName)
	}
	return name, nil
}

// validateAge only checks presence; any non-empty value is accepted.
func validateAge(age string) *FormError {
	if age == "" {
		return fieldError("age", MsgSelectAge)
	}
	return nil
}
