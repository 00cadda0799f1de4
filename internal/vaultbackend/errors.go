package vaultbackend

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/vaultbackend/internal/observability"
	"github.com/vyrodovalexey/vaultbackend/internal/vault"
)

// InputError reports a malformed request.
type InputError struct {
	Message string
}

// Error implements the error interface.
func (e *InputError) Error() string {
	return e.Message
}

// NewInputError creates a new InputError.
func NewInputError(message string) *InputError {
	return &InputError{Message: message}
}

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Message string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return e.Message
}

// ErrorResponse is the body written for a failed request.
type ErrorResponse struct {
	Error    ErrorBody    `json:"error"`
	Request  RequestInfo  `json:"request"`
	Response ResponseInfo `json:"response"`
}

// ErrorBody names the error.
type ErrorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// RequestInfo identifies the failed request.
type RequestInfo struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// ResponseInfo carries the response status.
type ResponseInfo struct {
	StatusCode int `json:"statusCode"`
}

// classify maps an error to a status code and an error name.
func classify(err error) (int, string) {
	var inputErr *InputError
	var notFoundErr *NotFoundError
	var vaultErr *vault.VaultError

	switch {
	case errors.As(err, &inputErr), errors.Is(err, vault.ErrInvalidPath):
		return http.StatusBadRequest, "InputError"
	case errors.As(err, &notFoundErr), errors.Is(err, vault.ErrSecretNotFound):
		return http.StatusNotFound, "NotFoundError"
	case errors.Is(err, vault.ErrPermissionDenied), vault.IsAuthError(err):
		return http.StatusForbidden, "NotAllowedError"
	case errors.As(err, &vaultErr) && vaultErr.Code >= 400 && vaultErr.Code < 600:
		return vaultErr.Code, "VaultError"
	default:
		return http.StatusInternalServerError, "Error"
	}
}

// ErrorHandler writes the last error a handler attached with c.Error. Server
// errors are logged; client errors are logged at debug level.
func ErrorHandler(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		status, name := classify(last.Err)
		fields := []observability.Field{
			observability.String("method", c.Request.Method),
			observability.String("path", c.Request.URL.Path),
			observability.Int("status", status),
			observability.Error(last.Err),
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", fields...)
		} else {
			logger.Debug("request rejected", fields...)
		}

		c.JSON(status, ErrorResponse{
			Error:    ErrorBody{Name: name, Message: last.Err.Error()},
			Request:  RequestInfo{Method: c.Request.Method, URL: c.Request.URL.RequestURI()},
			Response: ResponseInfo{StatusCode: status},
		})
	}
}
