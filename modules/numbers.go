package modules

import (
	"regexp"
	"strings"
)

var reDigits = regexp.MustCompile("[0-9]+")

// NumberingPlan normalizes bare phone-number-like strings into the full
// international form the network expects. The old gateway hard-coded the
// Brazilian rules; they are configuration now because the heuristics are
// wrong for any other numbering plan.
type NumberingPlan struct {
	// CountryCode is prepended when the number does not already carry it.
	CountryCode string
	// MobileNinthDigit inserts a "9" after the two-digit area code when a
	// local mobile number arrives without it (Brazilian plans only).
	MobileNinthDigit bool
	// MaxNationalLength is the longest national significant number; anything
	// at least CountryCode+MaxNationalLength digits long is assumed to
	// already be international.
	MaxNationalLength int
}

// BrazilPlan matches the deployment this system was built for.
func BrazilPlan() NumberingPlan {
	return NumberingPlan{CountryCode: "55", MobileNinthDigit: true, MaxNationalLength: 11}
}

// PlanFor builds a plan for a bare country code; only Brazil gets the
// ninth-digit treatment.
func PlanFor(countryCode string) NumberingPlan {
	if countryCode == "" || countryCode == "55" {
		return BrazilPlan()
	}
	return NumberingPlan{CountryCode: countryCode, MaxNationalLength: 12}
}

// Normalize strips everything that is not a digit and returns the number in
// full international form (no "+").
func (p NumberingPlan) Normalize(raw string) string {
	n := strings.Join(reDigits.FindAllString(raw, -1), "")
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, p.CountryCode) && len(n) > p.MaxNationalLength {
		return n
	}
	if p.MobileNinthDigit && len(n) == 10 {
		// DDD + 8-digit mobile missing the ninth digit.
		n = n[:2] + "9" + n[2:]
	}
	return p.CountryCode + n
}

// Pretty renders an already-normalized number for logs and vcards, e.g.
// "+55 14 9 9999-8888".
func (p NumberingPlan) Pretty(normalized string) string {
	if !strings.HasPrefix(normalized, p.CountryCode) || len(normalized) < 12 {
		return "+" + normalized
	}
	cc := len(p.CountryCode)
	rest := normalized[cc:]
	if len(rest) == 11 {
		return "+" + p.CountryCode + " " + rest[:2] + " " + rest[2:3] + " " + rest[3:7] + "-" + rest[7:]
	}
	if len(rest) == 10 {
		return "+" + p.CountryCode + " " + rest[:2] + " " + rest[2:6] + "-" + rest[6:]
	}
	return "+" + normalized
}
