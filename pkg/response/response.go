package response

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ksred/astrade-api/internal/types"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Common error codes
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeDuplicateResource = "DUPLICATE_RESOURCE"
	ErrCodeRateLimited       = "RATE_LIMITED"
)

// ErrNotFound can be wrapped by services for missing domain records
var ErrNotFound = errors.New("resource not found")

// statusError is implemented by errors that know their HTTP mapping
type statusError interface {
	error
	HTTPStatus() int
	ErrorCode() string
}

type detailedError interface {
	ErrorDetails() interface{}
}

var sanitize atomic.Bool

// SetProduction hides internal error messages from clients
func SetProduction(production bool) {
	sanitize.Store(production)
}

// Handle processes the error and returns appropriate response
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}
	Fail(c, err)
}

// Fail maps err onto the error envelope
func Fail(c *gin.Context, err error) {
	var validationErr *types.ValidationError
	var kindErr statusError

	switch {
	case errors.As(err, &validationErr):
		JSONError(c, http.StatusBadRequest, ErrCodeValidationFailed, validationErr.Error(), map[string]string{"field": validationErr.Field})
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, ErrNotFound):
		NotFound(c, notFoundMessage(err))
	case errors.Is(err, gorm.ErrDuplicatedKey):
		Conflict(c, "Resource already exists")
	case errors.As(err, &kindErr):
		var details interface{}
		var detailed detailedError
		if errors.As(err, &detailed) {
			details = detailed.ErrorDetails()
		}
		JSONError(c, kindErr.HTTPStatus(), kindErr.ErrorCode(), kindErr.Error(), details)
	default:
		handleError(c, err)
	}
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == "POST" {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// OK sends a 200 regardless of method
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// JSONError writes an error envelope with an explicit status and code
func JSONError(c *gin.Context, status int, code, message string, details interface{}) {
	c.JSON(status, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	JSONError(c, http.StatusNotFound, ErrCodeNotFound, message, nil)
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	JSONError(c, http.StatusBadRequest, ErrCodeBadRequest, message, nil)
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	JSONError(c, http.StatusUnauthorized, ErrCodeUnauthorized, message, nil)
}

// TooManyRequests sends a 429 response
func TooManyRequests(c *gin.Context, message string) {
	JSONError(c, http.StatusTooManyRequests, ErrCodeRateLimited, message, nil)
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	JSONError(c, http.StatusInternalServerError, ErrCodeInternalError, message, nil)
}

// Conflict sends a 409 response
func Conflict(c *gin.Context, message string) {
	JSONError(c, http.StatusConflict, ErrCodeDuplicateResource, message, nil)
}

// handleError reports unexpected failures, hiding the cause in production
func handleError(c *gin.Context, err error) {
	c.Error(err)
	if sanitize.Load() {
		InternalError(c, "An unexpected error occurred")
		return
	}
	InternalError(c, err.Error())
}

func notFoundMessage(err error) string {
	if errors.Is(err, gorm.ErrRecordNotFound) || err == ErrNotFound {
		return "Resource not found"
	}
	return err.Error()
}
