package rules

import "errors"

// ErrInvalidRule is returned when a rule fails validation.
var ErrInvalidRule = errors.New("rules: invalid rule")
