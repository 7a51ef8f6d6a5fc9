// Package errs defines the error kinds produced and consumed by the core.
package errs

import (
	"errors"
	"fmt"
)

// ParseSBOMError indicates a malformed or unrecognized SBOM document.
type ParseSBOMError struct {
	Reason string
}

func (e *ParseSBOMError) Error() string {
	return fmt.Sprintf("parse sbom: %s", e.Reason)
}

// ParseSBOM constructs a ParseSBOMError.
func ParseSBOM(reason string) error {
	return &ParseSBOMError{Reason: reason}
}

// SBOMNotFoundError indicates a legacy on-disk SBOM file is missing during migration.
type SBOMNotFoundError struct {
	Path string
}

func (e *SBOMNotFoundError) Error() string {
	return fmt.Sprintf("sbom not found: %s", e.Path)
}

// SBOMNotFound constructs a SBOMNotFoundError.
func SBOMNotFound(path string) error {
	return &SBOMNotFoundError{Path: path}
}

// InvalidDataError indicates an integrity violation in DB-resident data.
type InvalidDataError struct {
	Reason string
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("invalid data: %s", e.Reason)
}

// InvalidData constructs an InvalidDataError.
func InvalidData(reason string) error {
	return &InvalidDataError{Reason: reason}
}

// DatabaseError wraps a lower-level store failure.
type DatabaseError struct {
	Backend string
	Err     error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database (%s): %s", e.Backend, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// Database constructs a DatabaseError.
func Database(backend string, err error) error {
	if err == nil {
		return nil
	}
	return &DatabaseError{Backend: backend, Err: err}
}

// RegistrationError indicates a user-registration validation failure.
type RegistrationError struct {
	Reason string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registration error: %s", e.Reason)
}

// Registration constructs a RegistrationError.
func Registration(reason string) error {
	return &RegistrationError{Reason: reason}
}

// AuthenticationError indicates a credential check failure.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication error: %s", e.Reason)
}

// Authentication constructs an AuthenticationError.
func Authentication(reason string) error {
	return &AuthenticationError{Reason: reason}
}

// ToolError indicates an external binary failure (non-zero exit, missing output).
type ToolError struct {
	Reason string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool error: %s", e.Reason)
}

// Tool constructs a ToolError.
func Tool(reason string) error {
	return &ToolError{Reason: reason}
}

// NotFoundError indicates a row lookup by key returned zero rows.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// NotFound constructs a NotFoundError.
func NotFound(resource, key string) error {
	return &NotFoundError{Resource: resource, Key: key}
}

// UnknownError wraps everything else.
type UnknownError struct {
	Reason string
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("unknown error: %s", e.Reason)
}

// Unknown constructs an UnknownError.
func Unknown(reason string) error {
	return &UnknownError{Reason: reason}
}

// IsNotFound reports whether err (or anything it wraps) is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
