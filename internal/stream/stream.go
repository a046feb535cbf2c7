// Package stream pushes top-of-book price updates to websocket subscribers.
// Each symbol gets one poller shared by all of its subscribers.
package stream

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ksred/astrade-api/internal/types"
	"github.com/ksred/astrade-api/pkg/response"
)

// OrderBookSource is satisfied by *exchange.Client
type OrderBookSource interface {
	GetOrderBook(ctx context.Context, symbol string, limit int) (*types.OrderBook, error)
}

type Manager struct {
	source   OrderBookSource
	interval time.Duration
	upgrader websocket.Upgrader

	mu   sync.Mutex
	ctx  context.Context
	hubs map[string]*hub
	wg   sync.WaitGroup
}

func NewManager(ctx context.Context, source OrderBookSource, interval time.Duration, origins *OriginChecker) *Manager {
	if origins == nil {
		origins = NewOriginChecker(nil)
	}
	return &Manager{
		source:   source,
		interval: interval,
		ctx:      ctx,
		hubs:     make(map[string]*hub),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     origins.Check,
		},
	}
}

// Symbols lists symbols with an active poller
func (m *Manager) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.hubs))
	for s := range m.hubs {
		out = append(out, s)
	}
	return out
}

// Wait blocks until every poller has exited after the manager context ends
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) acquire(symbol string) *hub {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.hubs[symbol]
	if !ok {
		h = newHub(symbol, m.source, m.interval, m.release)
		m.hubs[symbol] = h
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			h.run(m.ctx)
		}()
	}
	h.refs++
	return h
}

func (m *Manager) release(h *hub) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	h.refs--
	if h.refs > 0 {
		return false
	}
	if m.hubs[h.symbol] == h {
		delete(m.hubs, h.symbol)
	}
	return true
}

// ServeWS handles GET /stream/prices/:symbol. The symbol is checked against the
// exchange before the upgrade so unknown markets get a normal error response.
func (m *Manager) ServeWS() gin.HandlerFunc {
	return func(c *gin.Context) {
		symbol := strings.ToUpper(c.Param("symbol"))
		if _, err := m.source.GetOrderBook(c.Request.Context(), symbol, 1); err != nil {
			response.Fail(c, err)
			return
		}

		conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade has already written the HTTP error
			log.Warn().Err(err).Str("symbol", symbol).Msg("websocket upgrade failed")
			return
		}

		h := m.acquire(symbol)
		s := &subscriber{conn: conn, hub: h, send: make(chan []byte, sendBufferSize)}
		select {
		case h.register <- s:
		case <-h.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			conn.Close()
			return
		}

		go s.writePump()
		go s.readPump()
	}
}

// StatusHandler reports which symbols are currently streamed
func (m *Manager) StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.OK(c, gin.H{"symbols": m.Symbols(), "poll_interval_ms": m.interval.Milliseconds()})
	}
}
