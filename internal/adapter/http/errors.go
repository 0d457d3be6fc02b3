package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"mazaochain/pkg/apperr"
)

var statusByCode = map[apperr.Code]int{
	apperr.CodeValidation:             http.StatusBadRequest,
	apperr.CodeInsufficientCollateral: http.StatusUnprocessableEntity,
	apperr.CodeInsufficientBalance:    http.StatusUnprocessableEntity,
	apperr.CodeNotFound:               http.StatusNotFound,
	apperr.CodeInvalidState:           http.StatusConflict,
	apperr.CodeConflict:               http.StatusConflict,
	apperr.CodeTransactionFailed:      http.StatusBadGateway,
	apperr.CodeNetwork:                http.StatusServiceUnavailable,
	apperr.CodeTransactionTimeout:     http.StatusGatewayTimeout,
	apperr.CodeDatabase:               http.StatusInternalServerError,
}

// StatusOf maps an error onto an HTTP status; unknown errors are 500.
func StatusOf(err error) int {
	if s, ok := statusByCode[apperr.CodeOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// writeError renders err with its display message only; internal detail stays in logs.
func writeError(c echo.Context, err error) error {
	ae := apperr.From(err)
	if ae.Retryable() {
		c.Response().Header().Set("Retry-After", "2")
	}
	return c.JSON(StatusOf(ae), ErrorResponse{Error: apperr.UserMessageOf(ae), Code: string(ae.Code)})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func validationFailed(c echo.Context, err error) error {
	return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
		Error:   "validation failed",
		Details: ToFieldErrors(err),
	})
}

// loanIDParam reads and checks the :loan_id path param.
func loanIDParam(c echo.Context) (string, bool) {
	id := c.Param("loan_id")
	return id, reHex32.MatchString(id)
}
