package markets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ksred/astrade-api/internal/exchange"
	"github.com/ksred/astrade-api/internal/types"
)

type countingLister struct {
	calls atomic.Int32
	fail  atomic.Bool
	delay time.Duration
}

func (l *countingLister) GetMarkets(ctx context.Context) ([]types.Market, error) {
	l.calls.Add(1)
	time.Sleep(l.delay)
	if l.fail.Load() {
		return nil, exchange.ErrUnavailable
	}
	return []types.Market{{Symbol: "BTC-USD"}, {Symbol: "ETH-USD"}}, nil
}

func TestCache_LazyFetchOnce(t *testing.T) {
	lister := &countingLister{delay: 20 * time.Millisecond}
	cache := NewCache(lister)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			markets, err := cache.Markets(context.Background())
			if err != nil || len(markets) != 2 {
				t.Errorf("markets = %v, %v", markets, err)
			}
		}()
	}
	wg.Wait()

	if _, err := cache.Markets(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := lister.calls.Load(); n != 1 {
		t.Errorf("source called %d times, want 1", n)
	}
	if cache.FetchedAt().IsZero() {
		t.Error("fetchedAt not set")
	}
}

func TestCache_FailedRefreshKeepsList(t *testing.T) {
	lister := &countingLister{}
	cache := NewCache(lister)
	if _, err := cache.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	lister.fail.Store(true)
	if _, err := cache.Refresh(context.Background()); !errors.Is(err, exchange.ErrUnavailable) {
		t.Fatalf("got %v", err)
	}
	markets, err := cache.Markets(context.Background())
	if err != nil || len(markets) != 2 {
		t.Errorf("cached list lost: %v, %v", markets, err)
	}
}

type gatedLister struct {
	entered   chan struct{}
	release   chan struct{}
	once      sync.Once
	calls     atomic.Int32
	cancelled atomic.Bool
}

func (l *gatedLister) GetMarkets(ctx context.Context) ([]types.Market, error) {
	l.calls.Add(1)
	l.once.Do(func() { close(l.entered) })
	select {
	case <-l.release:
		return []types.Market{{Symbol: "BTC-USD"}}, nil
	case <-ctx.Done():
		l.cancelled.Store(true)
		return nil, ctx.Err()
	}
}

func TestCache_CancelledLeaderDoesNotFailWaiters(t *testing.T) {
	lister := &gatedLister{entered: make(chan struct{}), release: make(chan struct{})}
	cache := NewCache(lister)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := cache.Markets(leaderCtx)
		leaderErr <- err
	}()
	<-lister.entered

	type result struct {
		markets []types.Market
		err     error
	}
	waiter := make(chan result, 1)
	go func() {
		markets, err := cache.Markets(context.Background())
		waiter <- result{markets, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Errorf("leader err = %v, want context.Canceled", err)
	}
	close(lister.release)

	res := <-waiter
	if res.err != nil || len(res.markets) != 1 {
		t.Fatalf("waiter got %v, %v", res.markets, res.err)
	}
	if lister.cancelled.Load() {
		t.Error("shared fetch saw the leader's cancellation")
	}
	if n := lister.calls.Load(); n != 1 {
		t.Errorf("source called %d times, want 1", n)
	}
}

func TestCache_Schedule(t *testing.T) {
	cache := NewCache(&countingLister{})
	if err := cache.Start("not a schedule"); err == nil {
		t.Error("invalid schedule accepted")
	}

	cache = NewCache(&countingLister{})
	if err := cache.Start("@every 5m"); err != nil {
		t.Fatal(err)
	}
	cache.Stop()
}

func TestHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	client := exchange.NewClient(exchange.NewMockBackend())
	router := gin.New()
	NewGinHandlers(client, NewCache(client)).Register(router.Group("/api/v1/markets"))

	tests := []struct {
		path   string
		status int
	}{
		{"/api/v1/markets", http.StatusOK},
		{"/api/v1/markets/stats", http.StatusOK},
		{"/api/v1/markets/BTC-USD/stats", http.StatusOK},
		{"/api/v1/markets/DOGE-USD/stats", http.StatusNotFound},
		{"/api/v1/markets/BTC-USD/orderbook", http.StatusOK},
		{"/api/v1/markets/BTC-USD/orderbook?limit=0", http.StatusBadRequest},
		{"/api/v1/markets/BTC-USD/trades?limit=10", http.StatusOK},
		{"/api/v1/markets/BTC-USD/trades?limit=abc", http.StatusBadRequest},
		{"/api/v1/markets/BTC-USD/candles?interval=5m&limit=10", http.StatusOK},
		{"/api/v1/markets/BTC-USD/candles?interval=2h", http.StatusBadRequest},
		{"/api/v1/markets/BTC-USD/candles?start_time=20&end_time=10", http.StatusBadRequest},
		{"/api/v1/markets/ETH-USD/funding?limit=5", http.StatusOK},
		{"/api/v1/markets/ETH-USD/funding?limit=1001", http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != tt.status {
			t.Errorf("%s = %d, want %d: %s", tt.path, w.Code, tt.status, w.Body.String())
		}
	}
}
