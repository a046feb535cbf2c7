package exchange

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind errors returned by backends. Wrap them with %w to keep the kind.
var (
	ErrUnavailable       = &KindError{Code: "EXCHANGE_UNAVAILABLE", Status: http.StatusServiceUnavailable, Message: "exchange unavailable"}
	ErrTimeout           = &KindError{Code: "EXCHANGE_TIMEOUT", Status: http.StatusRequestTimeout, Message: "exchange request timed out"}
	ErrRateLimited       = &KindError{Code: "RATE_LIMITED", Status: http.StatusServiceUnavailable, Message: "exchange rate limit persisted after retries"}
	ErrAuthNotConfigured = &KindError{Code: "EXCHANGE_AUTH_NOT_CONFIGURED", Status: http.StatusUnauthorized, Message: "exchange API secret is not configured"}
)

// KindError is a fixed class of failure with a stable HTTP mapping
type KindError struct {
	Code    string
	Status  int
	Message string
}

func (e *KindError) Error() string   { return e.Message }
func (e *KindError) HTTPStatus() int { return e.Status }
func (e *KindError) ErrorCode() string {
	return e.Code
}

// APIError is a non-2xx answer from the exchange
type APIError struct {
	Status  int
	Message string
	Details json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("extended api error %d: %s", e.Status, e.Message)
}

// HTTPStatus propagates client errors and folds upstream failures into 503
func (e *APIError) HTTPStatus() int {
	if e.Status >= 500 {
		return http.StatusServiceUnavailable
	}
	return e.Status
}

func (e *APIError) ErrorCode() string {
	if e.Status >= 500 {
		return "EXCHANGE_UNAVAILABLE"
	}
	return "UPSTREAM_ERROR"
}

func (e *APIError) ErrorDetails() interface{} {
	if len(e.Details) == 0 {
		return nil
	}
	return e.Details
}

// parseAPIError builds an APIError from a response body, tolerating non-JSON bodies
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Message: http.StatusText(status)}

	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
		Details json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		if len(body) > 0 && len(body) <= 512 {
			apiErr.Message = string(body)
		}
		return apiErr
	}

	if payload.Message != "" {
		apiErr.Message = payload.Message
	} else if len(payload.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		var plain string
		switch {
		case json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "":
			apiErr.Message = nested.Message
		case json.Unmarshal(payload.Error, &plain) == nil && plain != "":
			apiErr.Message = plain
		}
	}
	apiErr.Details = payload.Details
	return apiErr
}
