package workflow

import (
	"errors"

	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
	domainwf "github.com/garyjia/offer-lifecycle/internal/domain/workflow"
)

// Error codes shared by the transport and metrics layers
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeApprovalRequired       = "APPROVAL_REQUIRED"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeNotFound               = "NOT_FOUND"
	CodeTimeout                = "TIMEOUT"
	CodeInternal               = "INTERNAL_ERROR"
)

// ErrorCode classifies an engine error. ApprovalRequired is checked before InvalidTransition.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, entity.ErrValidation):
		return CodeValidation
	case errors.Is(err, domainwf.ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, domainwf.ErrApprovalRequired):
		return CodeApprovalRequired
	case errors.Is(err, domainwf.ErrInvalidTransition), errors.Is(err, domainwf.ErrInvalidState):
		return CodeInvalidTransition
	case errors.Is(err, port.ErrConcurrentModification):
		return CodeConcurrentModification
	case errors.Is(err, port.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, port.ErrTimeout):
		return CodeTimeout
	default:
		return CodeInternal
	}
}
