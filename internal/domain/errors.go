// Package domain defines the project and endpoint types of the federation gateway
// together with the error types surfaced to callers.
package domain

import (
	"errors"
	"fmt"
)

// ErrEmptyProjectName is returned when a project name is blank.
var ErrEmptyProjectName = errors.New("project name is empty")

// UnknownProjectError indicates a project that is not registered.
type UnknownProjectError struct {
	Name string
}

func (e *UnknownProjectError) Error() string {
	if e.Name == "" {
		return "project not found: " + ErrEmptyProjectName.Error()
	}
	return fmt.Sprintf("project not found: %s", e.Name)
}

// Unwrap lets errors.Is match ErrEmptyProjectName for blank names.
func (e *UnknownProjectError) Unwrap() error {
	if e.Name == "" {
		return ErrEmptyProjectName
	}
	return nil
}

// UnknownEndpointError indicates an endpoint identifier that is not part of a project
type UnknownEndpointError struct {
	Project string
	ID      string
}

func (e *UnknownEndpointError) Error() string {
	return fmt.Sprintf("endpoint %s not found in project %s", e.ID, e.Project)
}

// ValidationError indicates input validation failed
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// ConflictError indicates a resource already exists
type ConflictError struct {
	Type       string // "project" or "endpoint"
	Identifier string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Type, e.Identifier)
}

// NewUnknownProjectError creates a new UnknownProjectError
func NewUnknownProjectError(name string) *UnknownProjectError {
	return &UnknownProjectError{Name: name}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewConflictError creates a new ConflictError
func NewConflictError(typ, identifier string) *ConflictError {
	return &ConflictError{
		Type:       typ,
		Identifier: identifier,
	}
}

// IsNotFound reports whether err denotes a missing project or endpoint.
func IsNotFound(err error) bool {
	var pe *UnknownProjectError
	var ee *UnknownEndpointError
	return errors.As(err, &pe) || errors.As(err, &ee)
}
