package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/offer-lifecycle/internal/application/workflow"
)

// CodeUnauthenticated is returned for a missing or invalid token
const CodeUnauthenticated = "UNAUTHENTICATED"

var statusByCode = map[string]int{
	workflow.CodeValidation:             http.StatusBadRequest,
	workflow.CodeUnauthorized:           http.StatusForbidden,
	workflow.CodeApprovalRequired:       http.StatusConflict,
	workflow.CodeInvalidTransition:      http.StatusConflict,
	workflow.CodeConcurrentModification: http.StatusConflict,
	workflow.CodeNotFound:               http.StatusNotFound,
	workflow.CodeTimeout:                http.StatusGatewayTimeout,
}

// writeError maps an engine error onto a status code and a stable error code.
// Internal errors are logged and reported without detail.
func (h *Handlers) writeError(c *gin.Context, op string, err error) {
	code := workflow.ErrorCode(err)
	status, ok := statusByCode[code]
	if !ok {
		h.logger.Error("Request failed", "op", op, "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "internal error",
			Code:    workflow.CodeInternal,
		})
		return
	}

	c.JSON(status, Response{
		Success: false,
		Error:   err.Error(),
		Code:    code,
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
		Code:    workflow.CodeValidation,
	})
}
