package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/astrade-api/internal/types"
)

var two = decimal.NewFromInt(2)

// PriceUpdate is pushed to subscribers whenever the top of book moves
type PriceUpdate struct {
	Type      string          `json:"type"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	BestBid   decimal.Decimal `json:"best_bid"`
	BestAsk   decimal.Decimal `json:"best_ask"`
	Spread    decimal.Decimal `json:"spread"`
	Timestamp int64           `json:"timestamp"`
}

// hub fans one symbol's updates out to its subscribers. A hub polls only while
// it has subscribers and the manager discards it once the last one leaves.
type hub struct {
	symbol   string
	source   OrderBookSource
	interval time.Duration
	logger   zerolog.Logger

	register   chan *subscriber
	unregister chan *subscriber
	subs       map[*subscriber]bool

	lastBid, lastAsk decimal.Decimal
	last             []byte

	// refs counts subscribers handed out by the manager, guarded by Manager.mu
	refs int
	// release is called once per departing subscriber and reports whether
	// the manager dropped the hub
	release func(h *hub) bool
	done    chan struct{}
}

func newHub(symbol string, source OrderBookSource, interval time.Duration, release func(*hub) bool) *hub {
	return &hub{
		symbol:     symbol,
		source:     source,
		interval:   interval,
		logger:     log.With().Str("component", "price_stream").Str("symbol", symbol).Logger(),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		subs:       make(map[*subscriber]bool),
		release:    release,
		done:       make(chan struct{}),
	}
}

func (h *hub) run(ctx context.Context) {
	defer close(h.done)
	h.logger.Info().Msg("starting price poller")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for s := range h.subs {
				delete(h.subs, s)
				close(s.send)
			}
			h.logger.Info().Msg("shutting down price poller")
			return

		case s := <-h.register:
			h.subs[s] = true
			if h.last != nil {
				h.deliver(s, h.last)
			}

		case s := <-h.unregister:
			if h.subs[s] {
				delete(h.subs, s)
				close(s.send)
			}
			if h.release(h) {
				h.logger.Info().Msg("no subscribers left, stopping price poller")
				return
			}

		case <-ticker.C:
			h.poll(ctx)
		}
	}
}

func (h *hub) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, h.interval*5)
	defer cancel()

	book, err := h.source.GetOrderBook(pollCtx, h.symbol, 1)
	if err != nil {
		h.logger.Warn().Err(err).Msg("order book poll failed")
		return
	}
	update, changed := h.diff(book)
	if !changed {
		return
	}

	msg, err := json.Marshal(update)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode price update")
		return
	}
	h.last = msg
	for s := range h.subs {
		h.deliver(s, msg)
	}
}

// diff reports whether best bid or ask moved since the last push
func (h *hub) diff(book *types.OrderBook) (PriceUpdate, bool) {
	bid, okBid := book.BestBid()
	ask, okAsk := book.BestAsk()
	if !okBid || !okAsk {
		return PriceUpdate{}, false
	}
	if h.last != nil && bid.Price.Equal(h.lastBid) && ask.Price.Equal(h.lastAsk) {
		return PriceUpdate{}, false
	}
	h.lastBid, h.lastAsk = bid.Price, ask.Price

	ts := book.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	return PriceUpdate{
		Type:      "price_update",
		Symbol:    h.symbol,
		Price:     bid.Price.Add(ask.Price).Div(two),
		BestBid:   bid.Price,
		BestAsk:   ask.Price,
		Spread:    ask.Price.Sub(bid.Price),
		Timestamp: ts,
	}, true
}

// deliver drops subscribers whose buffer is full
func (h *hub) deliver(s *subscriber, msg []byte) {
	select {
	case s.send <- msg:
	default:
		delete(h.subs, s)
		close(s.send)
		h.logger.Warn().Msg("dropped slow subscriber")
	}
}
