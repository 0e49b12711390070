package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"marginalia/api/internal/registry"
)

// DomainError is an error with a stable code the HTTP layer returns verbatim.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, registry.ErrNotFound) {
		return http.StatusNotFound, "DOCUMENT_NOT_OPEN", "Document is not open", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
