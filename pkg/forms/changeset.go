// Package forms validates section editor input. A Changeset collects the
// proposed field values of one section item and the errors found in them.
package forms

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Changeset tracks changes to one form and their validation errors.
type Changeset struct {
	// Data is the current value of each field.
	Data map[string]any

	// Changes are the proposed modifications.
	Changes map[string]any

	// Errors contains validation errors keyed by field name.
	Errors map[string][]string

	// Valid indicates if the changeset has passed validation.
	Valid bool
}

// NewChangeset creates a changeset over a copy of data.
func NewChangeset(data map[string]any) *Changeset {
	dataCopy := make(map[string]any, len(data))
	for k, v := range data {
		dataCopy[k] = v
	}
	return &Changeset{
		Data:    dataCopy,
		Changes: make(map[string]any),
		Errors:  make(map[string][]string),
		Valid:   true,
	}
}

// Cast filters params to the allowed fields and records those that differ
// from data as changes.
func Cast(data, params map[string]any, allowed []string) *Changeset {
	cs := NewChangeset(data)

	allowedSet := make(map[string]bool, len(allowed))
	for _, field := range allowed {
		allowedSet[field] = true
	}
	for key, value := range params {
		if allowedSet[key] && data[key] != value {
			cs.Changes[key] = value
		}
	}
	return cs
}

// GetField returns the change if present, otherwise the current value.
func (cs *Changeset) GetField(key string) any {
	if v, ok := cs.Changes[key]; ok {
		return v
	}
	return cs.Data[key]
}

// GetString returns a field as a string.
func (cs *Changeset) GetString(key string) string {
	switch v := cs.GetField(key).(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// ValidateRequired checks that fields are not blank.
func (cs *Changeset) ValidateRequired(fields ...string) *Changeset {
	for _, field := range fields {
		if strings.TrimSpace(cs.GetString(field)) == "" {
			cs.AddError(field, "is required")
		}
	}
	return cs
}

// LengthOpts configures length validation.
type LengthOpts struct {
	Min int
	Max int
}

// ValidateLength checks the rune length of a field.
func (cs *Changeset) ValidateLength(field string, opts LengthOpts) *Changeset {
	length := utf8.RuneCountInString(cs.GetString(field))
	if opts.Min > 0 && length < opts.Min {
		cs.AddError(field, fmt.Sprintf("should be at least %d character(s)", opts.Min))
	}
	if opts.Max > 0 && length > opts.Max {
		cs.AddError(field, fmt.Sprintf("should be at most %d character(s)", opts.Max))
	}
	return cs
}

// ValidateFormat checks a non-empty field against pattern.
func (cs *Changeset) ValidateFormat(field string, pattern *regexp.Regexp, msg string) *Changeset {
	value := cs.GetString(field)
	if value == "" {
		return cs
	}
	if !pattern.MatchString(value) {
		if msg == "" {
			msg = "has invalid format"
		}
		cs.AddError(field, msg)
	}
	return cs
}

// ValidateLink checks that a non-empty field is a site path or an http(s)
// URL.
func (cs *Changeset) ValidateLink(fields ...string) *Changeset {
	for _, field := range fields {
		value := cs.GetString(field)
		if value == "" {
			continue
		}
		if err := Link().Validate(value); err != nil {
			cs.AddError(field, "must be a path like /offers or an http(s) URL")
		}
	}
	return cs
}

// AddError adds an error to a field.
func (cs *Changeset) AddError(field, message string) *Changeset {
	cs.Errors[field] = append(cs.Errors[field], message)
	cs.Valid = false
	return cs
}

// HasError returns true if a field has errors.
func (cs *Changeset) HasError(field string) bool {
	return len(cs.Errors[field]) > 0
}

// FirstError returns the first error for a field.
func (cs *Changeset) FirstError(field string) string {
	if errs := cs.Errors[field]; len(errs) > 0 {
		return errs[0]
	}
	return ""
}

// FirstErrors maps each invalid field to its first error.
func (cs *Changeset) FirstErrors() map[string]string {
	out := make(map[string]string, len(cs.Errors))
	for field := range cs.Errors {
		out[field] = cs.FirstError(field)
	}
	return out
}

// ErrorMessages returns all errors as a single string, ordered by field.
func (cs *Changeset) ErrorMessages() string {
	fields := make([]string, 0, len(cs.Errors))
	for field := range cs.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var msgs []string
	for _, field := range fields {
		for _, err := range cs.Errors[field] {
			msgs = append(msgs, field+" "+err)
		}
	}
	return strings.Join(msgs, ", ")
}

// Apply returns the merged data with changes, or an error if the changeset
// is invalid.
func (cs *Changeset) Apply() (map[string]any, error) {
	if !cs.Valid {
		return nil, fmt.Errorf("changeset is invalid: %s", cs.ErrorMessages())
	}
	result := make(map[string]any, len(cs.Data)+len(cs.Changes))
	for k, v := range cs.Data {
		result[k] = v
	}
	for k, v := range cs.Changes {
		result[k] = v
	}
	return result, nil
}

// HasChanges returns true if there are any changes.
func (cs *Changeset) HasChanges() bool {
	return len(cs.Changes) > 0
}
