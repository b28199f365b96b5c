package forms

import (
	"errors"
	"net/url"
	"strings"
)

// Validator validates a single value.
type Validator interface {
	Validate(value string) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(value string) error

func (f ValidatorFunc) Validate(value string) error { return f(value) }

// ErrInvalidLink is returned by Link for values that are neither a site path
// nor an absolute http(s) URL.
var ErrInvalidLink = errors.New("invalid link")

// Link accepts "/path" style site paths and absolute http or https URLs.
func Link() Validator {
	return ValidatorFunc(func(value string) error {
		value = strings.TrimSpace(value)
		if strings.HasPrefix(value, "/") && !strings.HasPrefix(value, "//") {
			return nil
		}
		u, err := url.Parse(value)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrInvalidLink
		}
		return nil
	})
}

// Rule describes the constraints on one field.
type Rule struct {
	Field    string
	Label    string
	Required bool
	Max      int
	Link     bool
	Multi    bool
}

// Schema is an ordered set of field rules.
type Schema []Rule

// Fields returns the field names in order.
func (s Schema) Fields() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = r.Field
	}
	return out
}

// Rule returns the rule for field.
func (s Schema) Rule(field string) (Rule, bool) {
	for _, r := range s {
		if r.Field == field {
			return r, true
		}
	}
	return Rule{}, false
}

// Validate applies every rule to cs.
func (s Schema) Validate(cs *Changeset) *Changeset {
	for _, r := range s {
		if r.Required {
			cs.ValidateRequired(r.Field)
		}
		if r.Max > 0 {
			cs.ValidateLength(r.Field, LengthOpts{Max: r.Max})
		}
		if r.Link {
			cs.ValidateLink(r.Field)
		}
	}
	return cs
}
