package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is against the typed errors below
var (
	ErrDatabase         = errors.New("database error")
	ErrInsufficientData = errors.New("insufficient data")
	ErrValidation       = errors.New("validation error")
)

// DatabaseError wraps a query or connection failure. It is surfaced to the
// caller and never retried internally.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database %s failed: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// Is reports whether target is ErrDatabase
func (e *DatabaseError) Is(target error) bool { return target == ErrDatabase }

// NewDatabaseError wraps err for operation op, returning nil when err is nil
func NewDatabaseError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DatabaseError{Op: op, Err: err}
}

// InsufficientDataError reports that a computation had fewer samples than it needs
type InsufficientDataError struct {
	What string
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient %s: have %d, need %d", e.What, e.Have, e.Need)
}

// Is reports whether target is ErrInsufficientData
func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// ValidationError reports malformed input such as an unknown page type or a
// negative count.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrValidation
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid is a shorthand for building a ValidationError
func Invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// PageType identifies whether a creator runs a paid or free subscription page
type PageType string

const (
	PagePaid PageType = "paid"
	PageFree PageType = "free"
)

// ParsePageType validates a raw page type string
func ParsePageType(s string) (PageType, error) {
	switch PageType(s) {
	case PagePaid:
		return PagePaid, nil
	case PageFree:
		return PageFree, nil
	default:
		return "", Invalid("page_type", "must be %q or %q, got %q", PagePaid, PageFree, s)
	}
}

// Category is one of the three send categories a schedule is built from
type Category string

const (
	CategoryRevenue    Category = "revenue"
	CategoryEngagement Category = "engagement"
	CategoryRetention  Category = "retention"
)

// Categories lists the send categories in reporting order
var Categories = []Category{CategoryRevenue, CategoryEngagement, CategoryRetention}
