package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// NotFoundError reports a missing student, enrollment, payment, receipt etc.
type NotFoundError struct {
	Entity string
	Key    interface{}
}

func NewNotFoundError(entity string, key interface{}) error {
	return &NotFoundError{Entity: entity, Key: key}
}

func (err NotFoundError) Error() string {
	if err.Key == nil {
		return err.Entity + " not found"
	}
	return fmt.Sprintf("%s %v not found", err.Entity, err.Key)
}

// ConflictError reports a uniqueness violation at the storage layer.
type ConflictError struct {
	Constraint string
	Err        error
}

func NewConflictError(constraint string, err error) error {
	return &ConflictError{Constraint: constraint, Err: err}
}

func (err ConflictError) Error() string {
	msg := "conflict on " + err.Constraint
	if err.Err != nil {
		msg += ": " + err.Err.Error()
	}
	return msg
}

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

func IsConflict(err error) bool {
	_, ok := errors.Cause(err).(*ConflictError)
	return ok
}

func IsValidation(err error) bool {
	_, ok := errors.Cause(err).(*ValidationError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
