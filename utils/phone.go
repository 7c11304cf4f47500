package utils

import (
	"strings"
	"unicode/utf8"

	"github.com/ttacon/libphonenumber"
)

// DefaultPhoneRegion is used for numbers written without a country code.
const DefaultPhoneRegion = "BR"

// NormalizePhone returns the E.164 form of a phone number. Numbers that do not
// parse or are not valid for the region come back unchanged with ok=false, so
// the raw value is kept rather than lost.
func NormalizePhone(raw string, region string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if region == "" {
		region = DefaultPhoneRegion
	}
	p, err := libphonenumber.Parse(s, region)
	if err != nil || !libphonenumber.IsValidNumber(p) {
		return s, false
	}
	return libphonenumber.Format(p, libphonenumber.E164), true
}

// MaxPhoneLength matches the phone columns of the ride and driver tables.
const MaxPhoneLength = 20

// PhoneOrRaw normalizes a phone for storage. A number that does not normalize
// is kept as typed when it fits the column and dropped otherwise.
func PhoneOrRaw(raw, region string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if e164, ok := NormalizePhone(s, region); ok {
		return &e164
	}
	if utf8.RuneCountInString(s) > MaxPhoneLength {
		return nil
	}
	return &s
}
