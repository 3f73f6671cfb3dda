// Package validate checks request payloads and reports translated per-field messages.
package validate

// FieldError one invalid field, Domain is its json name
type FieldError struct {
	Domain string `json:"domain"`
	Reason string `json:"reason"`
}

// NewFieldError create new field error
func NewFieldError(domain string, reason string) *FieldError {
	return &FieldError{domain, reason}
}

// Validator request payload validation
type Validator interface {
	// Struct nil when s is valid
	Struct(s interface{}) []*FieldError
	// AllEmpty error unless at least one of fields is set, names pair with fields by position
	AllEmpty(names []string, fields ...interface{}) *FieldError
	// WithLocale validator replying in locale, unknown locales return the receiver
	WithLocale(locale string) Validator
}
