// Package form binds submitted request data onto typed structs, collects
// per-field validation errors, and groups repeated forms into formsets.
package form

import (
	"mime/multipart"
	"net/url"
)

// NonFieldErrors is the Errors key for errors not tied to a single field.
const NonFieldErrors = "__all__"

// Kwargs are the construction arguments every form receives. Data and Files
// are only populated for state-changing requests; a nil Data means the form
// is unbound.
type Kwargs struct {
	Initial map[string]any
	Prefix  string
	Data    url.Values
	Files   map[string][]*multipart.FileHeader
}

// IsBound reports whether submitted data is present.
func (k Kwargs) IsBound() bool {
	return k.Data != nil
}

// AddPrefix returns the submitted name of field, "prefix-field" when a
// prefix is set.
func (k Kwargs) AddPrefix(field string) string {
	if k.Prefix == "" {
		return field
	}
	return k.Prefix + "-" + field
}

// Form is the contract the views need from any form or formset.
type Form interface {
	IsBound() bool
	IsValid() bool
	Errors() Errors
	HasChanged() bool
}

// Errors maps field names to their messages.
type Errors map[string][]string

// Add appends msg to the errors of field.
func (e Errors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

// Has reports whether field has at least one error.
func (e Errors) Has(field string) bool {
	return len(e[field]) > 0
}

// Get returns the messages for field.
func (e Errors) Get(field string) []string {
	return e[field]
}

// NonField returns the errors not attached to a field.
func (e Errors) NonField() []string {
	return e[NonFieldErrors]
}

// Cleaner runs after field binding and validation to add cross-field errors.
type Cleaner func(errs Errors)
