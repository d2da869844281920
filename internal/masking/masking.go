// Package masking redacts email addresses, payment card numbers and social
// security numbers while leaving enough of the value visible to identify it.
//
// Every function is pure and safe for concurrent use. Input that does not
// have the expected shape is returned unchanged.
package masking

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaskChar replaces every hidden character.
const MaskChar = "*"

const (
	// emailVisibleChars is the number of local-part code points kept literal
	emailVisibleChars = 2

	cardVisiblePrefix = 6
	cardVisibleSuffix = 4

	ssnDashesMaskedPrefix  = "***-**-"
	ssnNumbersMaskedPrefix = "*****"
)

var (
	// emailPattern matches exactly one '@' with a non-empty part on each side
	emailPattern = regexp.MustCompile(`^([^@]+)@([^@]+)$`)

	// Card numbers can only be 13 to 19 digits long
	paymentCardPattern = regexp.MustCompile(`^([0-9]{6})[0-9]{3,9}([0-9]{4})$`)

	ssnDashesPattern     = regexp.MustCompile(`^[0-9]{3}-[0-9]{2}-([0-9]{4})$`)
	ssnAllNumbersPattern = regexp.MustCompile(`^[0-9]{9}$`)
)

// MaskEmail keeps the first two characters of the local part and the whole
// domain, replacing the rest of the local part with '*'.
//
//	MaskEmail("john@doe.com") = "jo**@doe.com"
//	MaskEmail("jo@doe.com")   = "jo@doe.com"
//	MaskEmail("john@doe@com") = "john@doe@com"
//	MaskEmail("abc@d")        = "ab*@d"
//	MaskEmail("")             = ""
func MaskEmail(email string) string {
	if email == "" {
		return email
	}

	m := emailPattern.FindStringSubmatch(email)
	if m == nil {
		return email
	}

	local, domain := m[1], m[2]
	n := utf8.RuneCountInString(local)
	if n <= emailVisibleChars {
		return email
	}

	// slice by byte offset so invalid UTF-8 in the prefix is kept as is
	offset := 0
	for i := 0; i < emailVisibleChars; i++ {
		_, size := utf8.DecodeRuneInString(local[offset:])
		offset += size
	}
	return local[:offset] + strings.Repeat(MaskChar, n-emailVisibleChars) + "@" + domain
}

// MaskPaymentCard shows only the first 6 and last 4 digits of a 13 to 19
// digit card number. The masked value has the same length as the input.
//
//	MaskPaymentCard("4111111111111111")     = "411111******1111"
//	MaskPaymentCard("41111111111111111111") = "41111111111111111111"
func MaskPaymentCard(number string) string {
	if number == "" {
		return number
	}

	m := paymentCardPattern.FindStringSubmatch(number)
	if m == nil {
		return number
	}

	hidden := len(number) - cardVisiblePrefix - cardVisibleSuffix
	return m[1] + strings.Repeat(MaskChar, hidden) + m[2]
}

// MaskSSN shows only the last four digits of a social security number
// written either as 123-45-6789 or as 123456789.
//
//	MaskSSN("123-45-6789") = "***-**-6789"
//	MaskSSN("123456789")   = "*****6789"
//	MaskSSN("humphrey")    = "humphrey"
func MaskSSN(ssn string) string {
	if ssn == "" {
		return ssn
	}

	if m := ssnDashesPattern.FindStringSubmatch(ssn); m != nil {
		return ssnDashesMaskedPrefix + m[1]
	}

	if ssnAllNumbersPattern.MatchString(ssn) {
		return ssnNumbersMaskedPrefix + ssn[len(ssn)-4:]
	}

	return ssn
}

// MaskEmailPtr is MaskEmail for optional values. A nil input returns nil.
func MaskEmailPtr(email *string) *string {
	return maskPtr(email, MaskEmail)
}

// MaskPaymentCardPtr is MaskPaymentCard for optional values.
func MaskPaymentCardPtr(number *string) *string {
	return maskPtr(number, MaskPaymentCard)
}

// MaskSSNPtr is MaskSSN for optional values.
func MaskSSNPtr(ssn *string) *string {
	return maskPtr(ssn, MaskSSN)
}

func maskPtr(in *string, fn func(string) string) *string {
	if in == nil {
		return nil
	}
	out := fn(*in)
	return &out
}
