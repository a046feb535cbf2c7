package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ksred/astrade-api/internal/exchange"
	"github.com/ksred/astrade-api/internal/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func run(t *testing.T, method string, fn func(c *gin.Context)) (int, Response) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, "/", nil)
	fn(c)

	var body Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body %q: %v", w.Body.String(), err)
	}
	return w.Code, body
}

func TestHandle_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"validation", types.NewValidationError("limit", "must be between 1 and 1000"), http.StatusBadRequest, ErrCodeValidationFailed},
		{"wrapped validation", fmt.Errorf("list trades: %w", types.NewValidationError("limit", "bad")), http.StatusBadRequest, ErrCodeValidationFailed},
		{"gorm not found", gorm.ErrRecordNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"domain not found", fmt.Errorf("user abc: %w", ErrNotFound), http.StatusNotFound, ErrCodeNotFound},
		{"duplicate", gorm.ErrDuplicatedKey, http.StatusConflict, ErrCodeDuplicateResource},
		{"upstream 4xx", &exchange.APIError{Status: http.StatusUnprocessableEntity, Message: "insufficient margin"}, http.StatusUnprocessableEntity, "UPSTREAM_ERROR"},
		{"upstream 5xx", &exchange.APIError{Status: http.StatusBadGateway, Message: "bad gateway"}, http.StatusServiceUnavailable, "EXCHANGE_UNAVAILABLE"},
		{"unavailable", fmt.Errorf("%w: dial tcp refused", exchange.ErrUnavailable), http.StatusServiceUnavailable, "EXCHANGE_UNAVAILABLE"},
		{"timeout", fmt.Errorf("%w: deadline", exchange.ErrTimeout), http.StatusRequestTimeout, "EXCHANGE_TIMEOUT"},
		{"rate limited", fmt.Errorf("%w: 3 attempts", exchange.ErrRateLimited), http.StatusServiceUnavailable, ErrCodeRateLimited},
		{"internal", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := run(t, http.MethodGet, func(c *gin.Context) { Handle(c, nil, tt.err) })
			if code != tt.wantCode {
				t.Errorf("status = %d, want %d", code, tt.wantCode)
			}
			if body.Success || body.Error == nil || body.Error.Code != tt.wantErr {
				t.Errorf("unexpected body %+v", body)
			}
		})
	}
}

func TestHandle_UpstreamDetailsPropagated(t *testing.T) {
	err := &exchange.APIError{Status: http.StatusBadRequest, Message: "invalid size", Details: json.RawMessage(`{"field":"size"}`)}
	_, body := run(t, http.MethodGet, func(c *gin.Context) { Handle(c, nil, err) })

	details, ok := body.Error.Details.(map[string]interface{})
	if !ok || details["field"] != "size" {
		t.Errorf("details = %#v", body.Error.Details)
	}
	if body.Error.Message != "extended api error 400: invalid size" {
		t.Errorf("message = %q", body.Error.Message)
	}
}

func TestHandle_SanitizesInProduction(t *testing.T) {
	SetProduction(true)
	defer SetProduction(false)

	_, body := run(t, http.MethodGet, func(c *gin.Context) { Handle(c, nil, errors.New("pq: password authentication failed")) })
	if body.Error.Message != "An unexpected error occurred" {
		t.Errorf("internal message leaked: %q", body.Error.Message)
	}
}

func TestSuccess_StatusByMethod(t *testing.T) {
	code, body := run(t, http.MethodPost, func(c *gin.Context) { Success(c, map[string]string{"id": "1"}) })
	if code != http.StatusCreated || !body.Success {
		t.Errorf("POST status = %d", code)
	}
	code, _ = run(t, http.MethodGet, func(c *gin.Context) { Success(c, nil) })
	if code != http.StatusOK {
		t.Errorf("GET status = %d", code)
	}
	code, _ = run(t, http.MethodPost, func(c *gin.Context) { OK(c, nil) })
	if code != http.StatusOK {
		t.Errorf("OK() status = %d", code)
	}
}
