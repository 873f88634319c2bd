// Package validation provides reusable input validation functions for
// satfetch configuration and command arguments.
// All validators follow a consistent pattern: they return nil on success and
// a *Result naming the offending field on failure. Every *Result matches
// errors.ErrInvalidInput as well as its own sentinel.
package validation

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/satfetch/satfetch/lib/errors"
)

// Common validation errors. These are sentinel errors that can be checked with errors.Is().
var (
	// ErrRequired indicates a required field is missing or empty.
	ErrRequired = errors.New("field is required")

	// ErrTooLong indicates a string exceeds the maximum length.
	ErrTooLong = errors.New("value exceeds maximum length")

	// ErrInvalidFormat indicates a value doesn't match the expected format.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrOutOfRange indicates a numeric value is outside the allowed range.
	ErrOutOfRange = errors.New("value out of range")
)

// Constraints imposed by S3-compatible object stores.
const (
	// MaxObjectKeyLength is the maximum length of an object key in bytes.
	MaxObjectKeyLength = 1024

	// MinBucketNameLength is the minimum length of a bucket name.
	MinBucketNameLength = 3

	// MaxBucketNameLength is the maximum length of a bucket name.
	MaxBucketNameLength = 63
)

var (
	// bucketPattern matches DNS-compatible bucket names.
	bucketPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*[a-z0-9]$`)

	// ipPattern matches bucket names formatted as IPv4 addresses, which S3 rejects.
	ipPattern = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+$`)

	// regionPattern matches AWS region names such as us-west-2 or us-gov-east-1.
	regionPattern = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)+-\d+$`)
)

// Result represents a validation result with field context.
type Result struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (r *Result) Error() string {
	if r.Field != "" {
		return fmt.Sprintf("%s: %s", r.Field, r.Message)
	}
	return r.Message
}

// Unwrap returns the sentinel and errors.ErrInvalidInput for errors.Is() support.
func (r *Result) Unwrap() []error {
	return []error{r.Err, apperrors.ErrInvalidInput}
}

// NewResult creates a validation result.
func NewResult(field, message string, err error) *Result {
	return &Result{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// Required validates that a string is non-empty.
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewResult(field, "is required", ErrRequired)
	}
	return nil
}

// MaxLength validates that a string is at most max bytes long.
func MaxLength(field, value string, max int) error {
	if len(value) > max {
		return NewResult(field, fmt.Sprintf("must be at most %d bytes", max), ErrTooLong)
	}
	return nil
}

// IntRange validates that an integer is within [min, max].
func IntRange(field string, value, min, max int) error {
	if value < min || value > max {
		return NewResult(field, fmt.Sprintf("must be between %d and %d", min, max), ErrOutOfRange)
	}
	return nil
}

// Positive validates that an integer is greater than zero.
func Positive(field string, value int) error {
	if value <= 0 {
		return NewResult(field, "must be positive", ErrOutOfRange)
	}
	return nil
}

// PositiveDuration validates that a duration is greater than zero.
func PositiveDuration(field string, value time.Duration) error {
	if value <= 0 {
		return NewResult(field, "must be a positive duration", ErrOutOfRange)
	}
	return nil
}

// NonNegativeDuration validates that a duration is zero or greater.
func NonNegativeDuration(field string, value time.Duration) error {
	if value < 0 {
		return NewResult(field, "must not be negative", ErrOutOfRange)
	}
	return nil
}

// HostPort validates a host:port address.
func HostPort(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}

	_, _, err := net.SplitHostPort(value)
	if err != nil {
		return NewResult(field, "must be in host:port format", ErrInvalidFormat)
	}

	return nil
}

// EndpointURL validates an absolute http or https URL.
func EndpointURL(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}

	u, err := url.Parse(value)
	if err != nil || u.Host == "" {
		return NewResult(field, "must be an absolute URL", ErrInvalidFormat)
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return NewResult(field, "must use http or https", ErrInvalidFormat)
	}
	return nil
}

// BucketName validates an S3 bucket name.
func BucketName(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}
	if len(value) < MinBucketNameLength || len(value) > MaxBucketNameLength {
		return NewResult(field, fmt.Sprintf("must be %d to %d characters", MinBucketNameLength, MaxBucketNameLength), ErrOutOfRange)
	}
	if !bucketPattern.MatchString(value) || strings.Contains(value, "..") || ipPattern.MatchString(value) {
		return NewResult(field, "must be lowercase letters, digits, dots and hyphens, starting and ending with a letter or digit", ErrInvalidFormat)
	}
	return nil
}

// Region validates an AWS region name.
func Region(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}
	if !regionPattern.MatchString(value) {
		return NewResult(field, "must be a region name such as us-west-2", ErrInvalidFormat)
	}
	return nil
}

// ObjectKey validates an object key.
func ObjectKey(field, value string) error {
	if value == "" {
		return NewResult(field, "is required", ErrRequired)
	}
	return Prefix(field, value)
}

// Prefix validates a key prefix. An empty prefix is valid.
func Prefix(field, value string) error {
	if err := MaxLength(field, value, MaxObjectKeyLength); err != nil {
		return err
	}
	if !utf8.ValidString(value) {
		return NewResult(field, "must be valid UTF-8", ErrInvalidFormat)
	}
	if strings.IndexFunc(value, unicode.IsControl) >= 0 {
		return NewResult(field, "must not contain control characters", ErrInvalidFormat)
	}
	return nil
}

// All runs multiple validation functions and returns the first error.
func All(validators ...func() error) error {
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

// Errors collects multiple validation errors.
type Errors []error

// Add appends an error to the collection (nil errors are ignored).
func (e *Errors) Add(err error) {
	if err != nil {
		*e = append(*e, err)
	}
}

// HasErrors returns true if any errors were collected.
func (e Errors) HasErrors() bool {
	return len(e) > 0
}

// Error returns all errors as a single error message.
func (e Errors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var b strings.Builder
	b.WriteString("multiple validation errors: ")
	for i, err := range e {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e Errors) Unwrap() []error {
	return e
}

// Err returns the collection as an error, or nil when it is empty.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// First returns the first error, or nil if none.
func (e Errors) First() error {
	if len(e) == 0 {
		return nil
	}
	return e[0]
}
