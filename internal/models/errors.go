package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes carried by AppError.
const (
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInvalidState        = "INVALID_STATE"
	CodeNotFound            = "NOT_FOUND"
	CodeTargetMissing       = "TARGET_MISSING"
	CodeHasChildren         = "HAS_CHILDREN"
	CodeAllocationConflict  = "ALLOCATION_CONFLICT"
	CodeValidation          = "VALIDATION_ERROR"
	CodeDuplicateCodePrefix = "DUPLICATE_CODE_PREFIX"
	CodeNoPendingRevision   = "NO_PENDING_REVISION"
	CodeInternal            = "INTERNAL_ERROR"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error
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

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

func NewInvalidStateError(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidState,
		Message: message,
	}
}

func NewTargetMissingError(itemID interface{}) *AppError {
	return &AppError{
		Code:    CodeTargetMissing,
		Message: fmt.Sprintf("target item %v no longer exists", itemID),
	}
}

func NewHasChildrenError(fullID string, children int64) *AppError {
	return &AppError{
		Code:    CodeHasChildren,
		Message: fmt.Sprintf("item %s still has %d active child item(s)", fullID, children),
	}
}

func NewAllocationConflictError(fullID string, err error) *AppError {
	return &AppError{
		Code:    CodeAllocationConflict,
		Message: fmt.Sprintf("identifier %s was allocated concurrently", fullID),
		Err:     err,
	}
}

func NewDuplicateCodePrefixError(prefix string) *AppError {
	return &AppError{
		Code:    CodeDuplicateCodePrefix,
		Message: fmt.Sprintf("code prefix %s is already in use", prefix),
	}
}

func NewNoPendingRevisionError(approvalID uint) *AppError {
	return &AppError{
		Code:    CodeNoPendingRevision,
		Message: fmt.Sprintf("approval %d has no open revision request", approvalID),
	}
}

// ErrorCode returns the AppError code anywhere in err's chain, or "" when there is none.
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given AppError code.
func IsCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch ErrorCode(err) {
	case CodeUnauthorized:
		return fiber.StatusForbidden
	case CodeNotFound, CodeTargetMissing:
		return fiber.StatusNotFound
	case CodeInvalidState, CodeHasChildren, CodeAllocationConflict, CodeDuplicateCodePrefix, CodeNoPendingRevision:
		return fiber.StatusConflict
	case CodeValidation:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
		if appErr.Err != nil && appErr.Code != CodeInternal {
			response.Details = appErr.Err.Error()
		}
	} else {
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}
