package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/docket/internal/issue"
)

type errorBody struct {
	Error      string            `json:"error"`
	Violations []issue.Violation `json:"violations,omitempty"`
}

// statusOf maps the command failure classes to HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, issue.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, issue.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, issue.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, issue.ErrValidation):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *handlers) fail(c *gin.Context, err error) {
	status := statusOf(err)
	body := errorBody{Error: err.Error()}
	var verr *issue.ValidationError
	if errors.As(err, &verr) {
		body.Error = verr.Summary
		body.Violations = verr.Violations
	}
	if status == http.StatusInternalServerError {
		h.log.Error("api: request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		body.Error = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, body)
}

func badInput(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: msg})
}
