package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const userAgent = "AsTrade/1.0"

// LiveConfig configures the HTTP backend
type LiveConfig struct {
	BaseURL           string
	APIKey            string
	APISecret         string
	Timeout           time.Duration
	MaxAttempts       int
	RetryDeadline     time.Duration
	DefaultRetryAfter time.Duration
}

// LiveBackend calls the Extended Exchange over HTTP
type LiveBackend struct {
	cfg    LiveConfig
	client *http.Client
	signer *Signer

	// overridable in tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewLiveBackend(cfg LiveConfig) *LiveBackend {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDeadline <= 0 {
		cfg.RetryDeadline = 2 * time.Minute
	}
	if cfg.DefaultRetryAfter <= 0 {
		cfg.DefaultRetryAfter = 60 * time.Second
	}

	httpCfg := DefaultHTTPClientConfig()
	if cfg.Timeout > 0 {
		httpCfg.TotalTimeout = cfg.Timeout
	}

	var signer *Signer
	if cfg.APISecret != "" {
		signer = NewSigner(cfg.APISecret)
	}

	return &LiveBackend{
		cfg:    cfg,
		client: newHTTPClient(httpCfg),
		signer: signer,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

func (b *LiveBackend) Mode() string { return ModeLive }

// Close releases idle pooled connections
func (b *LiveBackend) Close() {
	b.client.CloseIdleConnections()
}

// Do sends the request, retrying on 429 up to MaxAttempts within RetryDeadline
func (b *LiveBackend) Do(ctx context.Context, req Request) (*Response, error) {
	logger := log.With().
		Str("method", req.Method).
		Str("path", req.Path).
		Logger()

	if req.Auth && b.signer == nil {
		return nil, ErrAuthNotConfigured
	}

	var body []byte
	if req.Body != nil {
		var err error
		if body, err = json.Marshal(req.Body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	deadline := b.now().Add(b.cfg.RetryDeadline)

	for attempt := 1; ; attempt++ {
		resp, retryAfter, err := b.send(ctx, req, body)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, errRetryable) {
			return nil, err
		}

		if attempt >= b.cfg.MaxAttempts {
			logger.Warn().Int("attempts", attempt).Msg("rate limited, giving up")
			return nil, fmt.Errorf("%w: %d attempts", ErrRateLimited, attempt)
		}
		if b.now().Add(retryAfter).After(deadline) {
			logger.Warn().Dur("retry_after", retryAfter).Msg("rate limited, retry would exceed deadline")
			return nil, fmt.Errorf("%w: retry-after %s exceeds deadline", ErrRateLimited, retryAfter)
		}

		logger.Warn().
			Int("attempt", attempt).
			Dur("retry_after", retryAfter).
			Msg("rate limited by exchange, retrying")

		if err := b.sleep(ctx, retryAfter); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
	}
}

var errRetryable = errors.New("retryable")

// send performs a single HTTP round trip. A 429 returns errRetryable and the wait.
func (b *LiveBackend) send(ctx context.Context, req Request, body []byte) (*Response, time.Duration, error) {
	target := strings.TrimRight(b.cfg.BaseURL, "/") + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if b.cfg.APIKey != "" {
		httpReq.Header.Set("X-Api-Key", b.cfg.APIKey)
	}
	if req.Auth {
		for k, v := range b.signer.Headers(b.now(), req.Method, req.Path, string(body)) {
			httpReq.Header.Set(k, v)
		}
	}

	httpResp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, 0, classifyTransportError(err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, 0, classifyTransportError(err)
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		return nil, b.retryAfter(httpResp.Header.Get("Retry-After")), errRetryable
	}

	if httpResp.StatusCode >= 400 {
		return nil, 0, parseAPIError(httpResp.StatusCode, respBody)
	}

	var out Response
	if len(respBody) == 0 {
		return &out, 0, nil
	}
	if !strings.HasPrefix(httpResp.Header.Get("Content-Type"), "application/json") {
		raw, _ := json.Marshal(string(respBody))
		out.Data = raw
		return &out, 0, nil
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, 0, fmt.Errorf("decode response: %w", err)
	}
	return &out, 0, nil
}

func (b *LiveBackend) retryAfter(header string) time.Duration {
	if header == "" {
		return b.cfg.DefaultRetryAfter
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := at.Sub(b.now()); d > 0 {
			return d
		}
		return 0
	}
	return b.cfg.DefaultRetryAfter
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
