// Package format holds the small display helpers shared by templates and
// handlers: rupiah amounts, dates, countdowns, and Indonesian phone numbers.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rupiah formats an amount as Indonesian rupiah with dot thousand
// separators, e.g. 150000 -> "Rp 150.000"
func Rupiah(amount int64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}

	if negative {
		return "-Rp " + b.String()
	}
	return "Rp " + b.String()
}

// Date formats a timestamp for display, e.g. "2 Jan 2006"
func Date(t time.Time) string {
	return t.Format("2 Jan 2006")
}

// Countdown renders whole seconds as "Hh Mm Ss", omitting the hour segment
// when it is zero, e.g. 3725 -> "1h 02m 05s", 125 -> "2m 05s"
func Countdown(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60

	if h > 0 {
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	}
	return fmt.Sprintf("%dm %02ds", m, s)
}

// NormalizePhone standardizes Indonesian phone numbers: strips spaces,
// dashes and a leading "+", and converts a leading "0" to the "62" country
// code. "08124636xxxx" -> "628124636xxxx".
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "+")
	phone = strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, phone)

	if strings.HasPrefix(phone, "0") {
		phone = "62" + strings.TrimPrefix(phone, "0")
	}
	return phone
}

// ValidatePhone checks a normalized Indonesian mobile number before any
// network call is made: 62 prefix, digits only, plausible length.
func ValidatePhone(phone string) error {
	if phone == "" {
		return fmt.Errorf("phone number is required")
	}
	if !strings.HasPrefix(phone, "62") {
		return fmt.Errorf("phone number must start with 0 or 62")
	}
	if len(phone) < 10 || len(phone) > 15 {
		return fmt.Errorf("phone number must be 10-15 digits")
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return fmt.Errorf("phone number must contain only digits")
		}
	}
	return nil
}
