package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	actiondomain "github.com/pantheonhq/pantheon/internal/action/domain"
	authdomain "github.com/pantheonhq/pantheon/internal/auth/domain"
	"github.com/pantheonhq/pantheon/internal/authorization"
	bundledomain "github.com/pantheonhq/pantheon/internal/bundle/domain"
	oracledomain "github.com/pantheonhq/pantheon/internal/oracle/domain"
	playerdomain "github.com/pantheonhq/pantheon/internal/player/domain"
	"github.com/pantheonhq/pantheon/pkg/db/pagination"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case isUnauthorizedError(err):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isForbiddenError(err):
		// Ownership denials share one shape so callers cannot probe for
		// the existence of other users' identifiers.
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, actiondomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "rate limit exceeded, retry later",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, actiondomain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	var bundleErr *bundledomain.ValidationError
	if errors.As(err, &bundleErr) {
		return true
	}
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, actiondomain.ErrInvalidAction),
		errors.Is(err, actiondomain.ErrInvalidClientActionID),
		errors.Is(err, actiondomain.ErrInvalidMetadata),
		errors.Is(err, actiondomain.ErrBulkEmpty),
		errors.Is(err, actiondomain.ErrBulkTooLarge),
		errors.Is(err, pagination.ErrInvalidOrder),
		errors.Is(err, playerdomain.ErrInvalidUsername),
		errors.Is(err, oracledomain.ErrInvalidName):
		return true
	default:
		return false
	}
}

func isUnauthorizedError(err error) bool {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrInvalidToken),
		errors.Is(err, authdomain.ErrTokenExpired),
		errors.Is(err, authdomain.ErrUserNotFound):
		return true
	default:
		return false
	}
}

func isForbiddenError(err error) bool {
	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, actiondomain.ErrNotOwner),
		errors.Is(err, oracledomain.ErrNotOwner),
		errors.Is(err, authorization.ErrForbidden):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, authdomain.ErrUserExists),
		errors.Is(err, playerdomain.ErrPlayerIDTaken),
		errors.Is(err, oracledomain.ErrOracleIDTaken),
		errors.Is(err, bundledomain.ErrPurgeInProgress):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, playerdomain.ErrAccountNotFound),
		errors.Is(err, bundledomain.ErrPurgeTargetMissing),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	var bundleErr *bundledomain.ValidationError
	if errors.As(err, &bundleErr) {
		return "invalid_" + bundleErr.ParamSet + "_params"
	}
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog labels request errors for the access log without
// leaking payload details.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if asValidationErrors(err) != nil || isValidationError(err) {
		return "validation_error", validationErrorCode(err)
	}
	switch {
	case isUnauthorizedError(err):
		return "unauthorized", "unauthorized"
	case isForbiddenError(err):
		return "forbidden", "forbidden"
	case isConflictError(err):
		return "conflict", "conflict"
	case isNotFoundError(err):
		return "not_found", "not_found"
	case errors.Is(err, actiondomain.ErrRateLimited):
		return "rate_limited", "rate_limited"
	case errors.Is(err, ErrServiceUnavailable), errors.Is(err, actiondomain.ErrStoreUnavailable):
		return "service_unavailable", "service_unavailable"
	default:
		return "internal_error", "internal_error"
	}
}
