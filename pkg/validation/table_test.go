package validation

import (
	"testing"
)

func TestValidateTableCode(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
	}{
		// Valid codes
		{"classic AT", "AT-2000", false},
		{"dotted", "AT.49", false},
		{"brazilian series", "BR-EMS-2021", false},
		{"two chars", "AT", false},
		{"max length", "AB-CDEFGHIJ-KLMNOPQ2", false},

		// Invalid codes - injection attempts and malformed input
		{"empty", "", true},
		{"single char", "A", true},
		{"lowercase", "at-2000", true},
		{"injection attempt", `AT-2000"; DROP TABLE--`, true},
		{"newline injection", "AT-2000\n/etc/passwd", true},
		{"path traversal", "../AT-2000", true},
		{"spaces", "AT 2000", true},
		{"too long", "AB-CDEFGHIJ-KLMNOPQ21", true},
		{"starts with hyphen", "-AT2000", true},
		{"starts with dot", ".AT2000", true},
		{"unicode", "AT-2000™", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTableCode(tt.code)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTableCode(%q) error = %v, wantErr %v", tt.code, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeTableCode(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		want    string
		wantErr bool
	}{
		{"uppercase passthrough", "BR-EMS-2021", "BR-EMS-2021", false},
		{"lowercase normalized", "br-ems-2021", "BR-EMS-2021", false},
		{"mixed case", "At-2000", "AT-2000", false},
		{"with spaces trimmed", "  AT-2000  ", "AT-2000", false},
		{"invalid rejected", "bad code!", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeTableCode(tt.code)
			if (err != nil) != tt.wantErr {
				t.Errorf("SanitizeTableCode(%q) error = %v, wantErr %v", tt.code, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SanitizeTableCode(%q) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestValidateRatePercent(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		max     float64
		wantErr bool
	}{
		{"zero", 0, 100, false},
		{"mid range", 14.5, 100, false},
		{"at max", 100, 100, false},
		{"negative", -0.1, 100, true},
		{"over max", 100.1, 100, true},
		{"over tighter max", 25, 20, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRatePercent("rate", tt.value, tt.max)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRatePercent(rate, %v, %v) error = %v, wantErr %v",
					tt.value, tt.max, err, tt.wantErr)
			}
		})
	}
}
