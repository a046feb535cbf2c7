package request

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ksred/astrade-api/internal/types"
)

// Limit reads ?limit, falling back to def when absent. Range checks happen in
// the exchange client so every caller gets the same bounds.
func Limit(c *gin.Context, def int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, types.NewValidationError("limit", "must be an integer")
	}
	return n, nil
}

// Int64 reads an optional integer query parameter; absent yields 0
func Int64(c *gin.Context, name string) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, types.NewValidationError(name, "must be an integer")
	}
	return n, nil
}
