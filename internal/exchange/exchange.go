package exchange

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/ksred/astrade-api/internal/config"
)

const (
	ModeLive = "live"
	ModeMock = "mock"
)

// Request describes one call against the Extended Exchange API
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
	Auth   bool
}

// Response is the exchange's standard envelope
type Response struct {
	Data       json.RawMessage `json:"data"`
	Pagination *Pagination     `json:"pagination,omitempty"`
}

type Pagination struct {
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

// Backend executes exchange requests. LiveBackend talks HTTP, MockBackend
// serves deterministic payloads.
type Backend interface {
	Do(ctx context.Context, req Request) (*Response, error)
	Mode() string
	Close()
}

// NewBackend picks the backend once, from configuration
func NewBackend(cfg config.ExchangeConfig) Backend {
	if cfg.MockMode() {
		log.Warn().
			Str("environment", cfg.Environment).
			Msg("no Extended API key configured, serving mock exchange data")
		return NewMockBackend()
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("base_url", cfg.BaseURL).
		Msg("using live Extended Exchange backend")
	return NewLiveBackend(LiveConfig{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		APISecret:         cfg.APISecret,
		Timeout:           cfg.Timeout,
		MaxAttempts:       cfg.MaxAttempts,
		RetryDeadline:     cfg.RetryDeadline,
		DefaultRetryAfter: cfg.DefaultRetryAfter,
	})
}
