package service

import (
	"errors"
	"fmt"
	"reflect"

	"retail-backoffice/pkg/validator"

	"github.com/google/uuid"
)

// Sentinels for errors.Is checks; the concrete types carry the details.
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("validation failed")
	ErrSKUExists         = errors.New("SKU already exists")
	ErrCategoryInUse     = errors.New("category is assigned to products")
)

// NotFoundError names the missing resource and its id.
type NotFoundError struct {
	Resource string
	ID       uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func notFound(resource string, id uuid.UUID) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// InsufficientStockError reports the shortfall for one product.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (%s): requested %d, available %d",
		e.ProductName, e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ValidationError rejects malformed input before any mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: field '%s' %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// validate runs struct validation and converts the first failure.
func validate(req interface{}) error {
	errs := validator.ValidateStruct(req)
	if len(errs) == 0 {
		return nil
	}
	first := errs[0]
	return invalid(first.FailedField, describeTag(first.Tag, first.Value, first.Kind))
}

func describeTag(tag, param string, kind reflect.Kind) string {
	switch tag {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if kind == reflect.String {
			return "must be at least " + param + " characters"
		}
		return "must have at least " + param + " item(s)"
	case "gt":
		return "must be greater than " + param
	case "gte":
		return "must be greater than or equal to " + param
	case "max":
		if kind == reflect.String {
			return "must be at most " + param + " characters"
		}
		return "must be at most " + param
	case "oneof":
		return "must be one of: " + param
	case "money":
		return "must have at most 2 decimal places"
	case "uuid_required":
		return "must be a valid id"
	case "invalid":
		return "is invalid: " + param
	}
	return "failed on '" + tag + "'"
}
