package format

import (
	"testing"
	"time"
)

func TestRupiah(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected string
	}{
		{
			name:     "small amount",
			input:    500,
			expected: "Rp 500",
		},
		{
			name:     "typical monthly bill",
			input:    150000,
			expected: "Rp 150.000",
		},
		{
			name:     "millions",
			input:    1250000,
			expected: "Rp 1.250.000",
		},
		{
			name:     "zero",
			input:    0,
			expected: "Rp 0",
		},
		{
			name:     "negative adjustment",
			input:    -7500,
			expected: "-Rp 7.500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Rupiah(tt.input)
			if result != tt.expected {
				t.Errorf("Rupiah(%d) = %q; want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestCountdown(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected string
	}{
		{
			name:     "hours minutes seconds",
			input:    3725,
			expected: "1h 02m 05s",
		},
		{
			name:     "minutes and seconds only",
			input:    125,
			expected: "2m 05s",
		},
		{
			name:     "fifteen minutes",
			input:    900,
			expected: "15m 00s",
		},
		{
			name:     "zero",
			input:    0,
			expected: "0m 00s",
		},
		{
			name:     "negative clamps to zero",
			input:    -5,
			expected: "0m 00s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Countdown(tt.input)
			if result != tt.expected {
				t.Errorf("Countdown(%d) = %q; want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestDate(t *testing.T) {
	d := time.Date(2026, time.September, 2, 10, 0, 0, 0, time.UTC)
	if got := Date(d); got != "2 Sep 2026" {
		t.Errorf("Date() = %q; want %q", got, "2 Sep 2026")
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "number without country code",
			input:    "081246361829",
			expected: "6281246361829",
		},
		{
			name:     "number with country code",
			input:    "6281246361829",
			expected: "6281246361829",
		},
		{
			name:     "plus prefix",
			input:    "+6281246361829",
			expected: "6281246361829",
		},
		{
			name:     "spaces and dashes",
			input:    "0812-4636 1829",
			expected: "6281246361829",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizePhone(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizePhone(%q) = %q; want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestValidatePhone(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid", input: "6281246361829", wantErr: false},
		{name: "empty", input: "", wantErr: true},
		{name: "wrong prefix", input: "1281246361829", wantErr: true},
		{name: "too short", input: "62812", wantErr: true},
		{name: "letters", input: "62812abc61829", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePhone(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePhone(%q) error = %v; wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
