package errors

import (
	"errors"
	"fmt"
)

// Domain errors - Sentinel errors for use with errors.Is()
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrConflict       = errors.New("resource conflict")
	ErrInternalServer = errors.New("internal server error")
	ErrInvalidState   = errors.New("invalid state")
	ErrExpiredProof   = errors.New("proof token expired")
	ErrMalformedProof = errors.New("malformed proof token")
	ErrProofMismatch  = errors.New("proof token mismatch")
	ErrPermission     = errors.New("permission denied")
	ErrValidation     = errors.New("validation error")
)

const (
	CodeNotFound       = "NOT_FOUND"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeBadRequest     = "BAD_REQUEST"
	CodeConflict       = "CONFLICT"
	CodeInternalServer = "INTERNAL_SERVER_ERROR"
	CodeInvalidState   = "INVALID_STATE"
	CodeExpiredProof   = "EXPIRED_PROOF"
	CodeMalformedProof = "MALFORMED_PROOF"
	CodeProofMismatch  = "PROOF_MISMATCH"
	CodePermission     = "PERMISSION_DENIED"
	CodeValidation     = "VALIDATION_ERROR"
)

// Custom error type with context
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Code returns the AppError code carried by err, or "" when err is not an AppError.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Constructors
func NotFound(msg string) *AppError {
	return &AppError{Code: CodeNotFound, Message: msg, Err: ErrNotFound}
}

func Unauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, Err: ErrUnauthorized}
}

func Forbidden(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Message: msg, Err: ErrForbidden}
}

func BadRequest(msg string) *AppError {
	return &AppError{Code: CodeBadRequest, Message: msg, Err: ErrBadRequest}
}

func Conflict(msg string) *AppError {
	return &AppError{Code: CodeConflict, Message: msg, Err: ErrConflict}
}

func InternalServer(msg string, err error) *AppError {
	return &AppError{Code: CodeInternalServer, Message: msg, Err: err}
}

func InvalidState(msg string) *AppError {
	return &AppError{Code: CodeInvalidState, Message: msg, Err: ErrInvalidState}
}

func ExpiredProof(msg string) *AppError {
	return &AppError{Code: CodeExpiredProof, Message: msg, Err: ErrExpiredProof}
}

func MalformedProof(msg string) *AppError {
	return &AppError{Code: CodeMalformedProof, Message: msg, Err: ErrMalformedProof}
}

func ProofMismatch(msg string) *AppError {
	return &AppError{Code: CodeProofMismatch, Message: msg, Err: ErrProofMismatch}
}

func Permission(msg string) *AppError {
	return &AppError{Code: CodePermission, Message: msg, Err: ErrPermission}
}

func Validation(msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, Err: ErrValidation}
}
