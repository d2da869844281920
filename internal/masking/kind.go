package masking

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names the type of sensitive data a value holds.
type Kind string

const (
	KindEmail       Kind = "email"
	KindPaymentCard Kind = "payment_card"
	KindSSN         Kind = "ssn"
)

// ErrUnknownKind is returned for kind names that have no masking function.
var ErrUnknownKind = errors.New("unknown masking kind")

var maskers = map[Kind]func(string) string{
	KindEmail:       MaskEmail,
	KindPaymentCard: MaskPaymentCard,
	KindSSN:         MaskSSN,
}

var kindAliases = map[string]Kind{
	"email":                  KindEmail,
	"email_address":          KindEmail,
	"payment_card":           KindPaymentCard,
	"card":                   KindPaymentCard,
	"pan":                    KindPaymentCard,
	"ssn":                    KindSSN,
	"social_security_number": KindSSN,
}

// Kinds returns every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindEmail, KindPaymentCard, KindSSN}
}

// ParseKind resolves a kind name or alias, ignoring case and surrounding spaces.
func ParseKind(name string) (Kind, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, "-", "_")
	if k, ok := kindAliases[key]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

func (k Kind) String() string {
	return string(k)
}

// Valid reports whether k has a masking function.
func (k Kind) Valid() bool {
	_, ok := maskers[k]
	return ok
}

// Apply masks value with the function registered for kind.
func Apply(kind Kind, value string) (string, error) {
	fn, ok := maskers[kind]
	if !ok {
		return value, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}
	return fn(value), nil
}

// ApplyPtr is Apply for optional values. A nil value is returned as nil
// without running any matching.
func ApplyPtr(kind Kind, value *string) (*string, error) {
	fn, ok := maskers[kind]
	if !ok {
		return value, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}
	return maskPtr(value, fn), nil
}
