package core

import (
	"context"
	"time"
)

// FieldType is the type of a request field in a validation schema.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldInteger FieldType = "integer"
	FieldURI     FieldType = "uri"
)

// Field describes a single request field.
// For strings Min and Max bound the length, for integers the value.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	Min      *int
	Max      *int
	Patterns []string
}

// Bound is a helper to set Field.Min / Field.Max.
func Bound(n int) *int {
	return &n
}

// Envelope is the provider specific credential returned to the caller.
type Envelope any

// CredentialGenerator mints a tenant scoped credential for a downstream service.
type CredentialGenerator interface {
	// Type returns the generator type as used in the configuration.
	Type() string

	// Fields returns the provider specific request fields.
	// They are composed with the common fields once, at construction time.
	Fields() []Field

	// Generate performs provider setup and returns the credential envelope.
	Generate(ctx context.Context, req *ValidatedRequest) (Envelope, error)
}

// ExpiresAt returns the time lease seconds from now, formatted the way
// every envelope advertises expiration.
func ExpiresAt(now time.Time, lease time.Duration) string {
	return now.Add(lease).UTC().Format(time.RFC3339Nano)
}
