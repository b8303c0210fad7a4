// Copyright (C) 2026 Previsim (eng@previsim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for user-supplied values
// that end up in requests to the computation service.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// tableCodePattern matches actuarial table codes such as "AT-2000",
// "BR-EMS-2021" or "AT.49": uppercase alphanumerics with dot or hyphen
// separators, 2-20 characters.
var tableCodePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{1,19}$`)

// ValidateTableCode validates a mortality/lookup table code.
//
// Valid codes:
//   - 2-20 characters
//   - Uppercase letters A-Z and digits 0-9
//   - Dots (.) and hyphens (-) as separators
//
// Returns an error describing the problem, or nil.
//
// Example:
//
//	if err := validation.ValidateTableCode(code); err != nil {
//	    return fmt.Errorf("invalid table: %w", err)
//	}
func ValidateTableCode(code string) error {
	if code == "" {
		return fmt.Errorf("table code cannot be empty")
	}
	if !tableCodePattern.MatchString(code) {
		return fmt.Errorf("invalid table code format: %q (must be 2-20 uppercase alphanumeric chars, dots, or hyphens)", code)
	}
	return nil
}

// SanitizeTableCode normalizes and validates a table code. Returns the
// uppercase code if valid, or an error.
func SanitizeTableCode(code string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if err := ValidateTableCode(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ValidateRatePercent checks a percentage-valued rate against [0, max].
// Used for contribution, fee and growth rates coming from flags or files.
func ValidateRatePercent(name string, value, max float64) error {
	if value < 0 {
		return fmt.Errorf("%s cannot be negative (got %.2f)", name, value)
	}
	if value > max {
		return fmt.Errorf("%s cannot exceed %.0f%% (got %.2f)", name, max, value)
	}
	return nil
}
