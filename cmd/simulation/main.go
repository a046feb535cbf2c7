package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/astrade-api/internal/types"
)

var (
	symbols = []string{"BTC-USD", "ETH-USD", "SOL-USD"}
	sides   = []types.OrderSide{types.SideBuy, types.SideSell}
)

func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks latency for one endpoint
type routeStats struct {
	name      string
	durations []time.Duration
	failures  int
}

func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient drives the gateway over HTTP; one per simulated pilot
type simulationClient struct {
	baseURL string
	client  *http.Client
	userID  string
	token   string

	mu    *sync.Mutex
	stats map[string]*routeStats
}

func newStats() map[string]*routeStats {
	return map[string]*routeStats{
		"user":    {name: "Create User"},
		"auth":    {name: "Authentication"},
		"claim":   {name: "Claim Daily"},
		"status":  {name: "Daily Status"},
		"order":   {name: "Create Order"},
		"orders":  {name: "List Orders"},
		"summary": {name: "Account Summary"},
		"markets": {name: "List Markets"},
	}
}

// call sends one request and records its latency under route.
// Non-2xx statuses are returned as errors along with the body.
func (sc *simulationClient) call(route, method, path string, body interface{}, header http.Header, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if sc.token != "" {
		req.Header.Set("Authorization", "Bearer "+sc.token)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	start := time.Now()
	resp, err := sc.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		sc.record(route, elapsed, false)
		return 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		sc.record(route, elapsed, false)
		return resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("route", route).Str("response", string(respBody)).Msg("response")

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	sc.record(route, elapsed, ok)
	if !ok {
		return resp.StatusCode, fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out != nil {
		envelope := struct {
			Data interface{} `json:"data"`
		}{Data: out}
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
		}
	}
	return resp.StatusCode, nil
}

func (sc *simulationClient) record(route string, d time.Duration, ok bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	rs := sc.stats[route]
	rs.durations = append(rs.durations, d)
	if !ok {
		rs.failures++
	}
}

// signIn creates the pilot and exchanges its id for a JWT
func (sc *simulationClient) signIn(pilot int) error {
	email := fmt.Sprintf("pilot-%d-%s@astrade.sim", pilot, uuid.NewString()[:8])

	var user struct {
		UserID string `json:"user_id"`
	}
	if _, err := sc.call("user", http.MethodPost, "/api/v1/users", map[string]string{"email": email, "username": fmt.Sprintf("pilot-%d", pilot)}, nil, &user); err != nil {
		return err
	}
	sc.userID = user.UserID

	var token struct {
		Token string `json:"jwt_token"`
	}
	if _, err := sc.call("auth", http.MethodPost, "/api/v1/auth/token", map[string]string{"user_id": user.UserID, "email": email}, nil, &token); err != nil {
		return err
	}
	sc.token = token.Token
	return nil
}

type pilotResult struct {
	orders        int
	failedOrders  int
	claimed       bool
	streak        int
	notional      decimal.Decimal
	symbolsTraded map[string]int
}

func (sc *simulationClient) fly(numOrders int) pilotResult {
	res := pilotResult{symbolsTraded: make(map[string]int)}
	logger := log.With().Str("user_id", sc.userID).Logger()

	if _, err := sc.call("markets", http.MethodGet, "/api/v1/markets", nil, nil, nil); err != nil {
		logger.Warn().Err(err).Msg("Failed to list markets")
	}

	var claim struct {
		Success bool `json:"success"`
		Streak  int  `json:"streak_count"`
	}
	if _, err := sc.call("claim", http.MethodPost, "/api/v1/rewards/claim-daily", nil, nil, &claim); err != nil {
		logger.Warn().Err(err).Msg("Failed to claim daily reward")
	} else {
		res.claimed = claim.Success
		res.streak = claim.Streak
	}

	for i := 0; i < numOrders; i++ {
		order := types.OrderRequest{
			Symbol:   symbols[rand.Intn(len(symbols))],
			Side:     sides[rand.Intn(len(sides))],
			Type:     types.OrderTypeMarket,
			Size:     decimal.NewFromInt(int64(rand.Intn(100) + 1)).Div(decimal.NewFromInt(100)),
			ClientID: fmt.Sprintf("sim-%s-%d", sc.userID[:8], i),
		}

		var created types.Order
		header := http.Header{"Idempotency-Key": {uuid.NewString()}}
		if _, err := sc.call("order", http.MethodPost, "/api/v1/orders", order, header, &created); err != nil {
			logger.Error().Err(err).Str("symbol", order.Symbol).Msg("Failed to create order")
			res.failedOrders++
			continue
		}
		res.orders++
		res.symbolsTraded[order.Symbol]++
		if price := created.AveragePrice; price != nil {
			res.notional = res.notional.Add(price.Mul(created.Size))
		} else if created.Price != nil {
			res.notional = res.notional.Add(created.Price.Mul(created.Size))
		}

		logger.Info().
			Str("order_id", created.ID).
			Str("symbol", order.Symbol).
			Str("side", string(order.Side)).
			Str("size", order.Size.String()).
			Msg("Order created")

		time.Sleep(time.Duration(rand.Intn(200)) * time.Millisecond)
	}

	if _, err := sc.call("orders", http.MethodGet, "/api/v1/orders?limit=50", nil, nil, nil); err != nil {
		logger.Warn().Err(err).Msg("Failed to list orders")
	}
	if _, err := sc.call("summary", http.MethodGet, "/api/v1/account/summary", nil, nil, nil); err != nil {
		logger.Warn().Err(err).Msg("Failed to fetch account summary")
	}
	if _, err := sc.call("status", http.MethodGet, "/api/v1/rewards/daily-status", nil, nil, nil); err != nil {
		logger.Warn().Err(err).Msg("Failed to fetch daily status")
	}
	return res
}

func printPerformanceStats(stats map[string]*routeStats) {
	names := make([]string, 0, len(stats))
	for k := range stats {
		names = append(names, k)
	}
	sort.Strings(names)

	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, name := range names {
		rs := stats[name]
		min, max, mean, median, p95, p99 := rs.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			rs.name,
			len(rs.durations),
			rs.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs concurrent pilots against a running gateway (mock exchange mode
// recommended) and prints a summary with per-route latency
func main() {
	addr := flag.String("addr", "http://localhost:8080", "gateway base URL")
	pilots := flag.Int("pilots", 5, "number of concurrent simulated users")
	orders := flag.Int("orders", 10, "orders per pilot")
	flag.Parse()

	var mu sync.Mutex
	stats := newStats()
	httpClient := &http.Client{Timeout: 10 * time.Second}

	log.Info().Str("addr", *addr).Int("pilots", *pilots).Int("orders_per_pilot", *orders).Msg("Starting simulation")
	start := time.Now()

	results := make(chan pilotResult, *pilots)
	var wg sync.WaitGroup
	for i := 0; i < *pilots; i++ {
		wg.Add(1)
		go func(pilot int) {
			defer wg.Done()
			sc := &simulationClient{baseURL: *addr, client: httpClient, mu: &mu, stats: stats}
			if err := sc.signIn(pilot); err != nil {
				log.Error().Err(err).Int("pilot", pilot).Msg("Failed to sign in")
				return
			}
			results <- sc.fly(*orders)
		}(i)
	}
	wg.Wait()
	close(results)

	var (
		totalOrders, failedOrders, claims, maxStreak int
		notional                                     decimal.Decimal
		bySymbol                                     = make(map[string]int)
	)
	for r := range results {
		totalOrders += r.orders
		failedOrders += r.failedOrders
		notional = notional.Add(r.notional)
		if r.claimed {
			claims++
		}
		if r.streak > maxStreak {
			maxStreak = r.streak
		}
		for s, n := range r.symbolsTraded {
			bySymbol[s] += n
		}
	}
	duration := time.Since(start)

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("ASTRADE SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
Orders created:   %d
Orders failed:    %d
Daily claims:     %d
Best streak:      %d
Notional:         $%s
Duration:         %v

Symbol Distribution
-------------------
`, totalOrders, failedOrders, claims, maxStreak, notional.StringFixed(2), duration.Round(time.Millisecond))

	maxCount := 0
	for _, n := range bySymbol {
		if n > maxCount {
			maxCount = n
		}
	}
	for _, symbol := range symbols {
		n := bySymbol[symbol]
		barLength := 0
		if maxCount > 0 {
			barLength = int(float64(n) / float64(maxCount) * 20)
		}
		fmt.Printf("%-8s: %s (%d)\n", symbol, strings.Repeat("#", barLength), n)
	}
	fmt.Println("\n" + strings.Repeat("=", 80))

	mu.Lock()
	printPerformanceStats(stats)
	mu.Unlock()

	log.Info().
		Int("orders", totalOrders).
		Int("failed_orders", failedOrders).
		Dur("duration", duration).
		Msg("Simulation completed")
}
