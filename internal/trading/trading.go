package trading

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/astrade-api/internal/exchange"
	"github.com/ksred/astrade-api/internal/types"
)

// idempotencyTTL bounds how long a key replays its first response
const idempotencyTTL = 24 * time.Hour

// ErrIdempotencyConflict is returned when a key is reused while the first
// order carrying it is still in flight
var ErrIdempotencyConflict = errors.New("idempotency key already in use by an order in progress")

// OrderSigner attaches a Stark signature to a user's outgoing orders
type OrderSigner interface {
	Sign(ctx context.Context, userID string, req *types.OrderRequest) error
}

// TradeRecorder is notified of every accepted order
type TradeRecorder interface {
	RecordTrade(ctx context.Context, userID string) error
}

// Service places and manages orders through the exchange client
type Service struct {
	db       *Database
	client   *exchange.Client
	signer   OrderSigner
	recorder TradeRecorder
	now      func() time.Time
}

func NewService(gormDB *gorm.DB, client *exchange.Client, signer OrderSigner, recorder TradeRecorder) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		client:   client,
		signer:   signer,
		recorder: recorder,
		now:      time.Now,
	}
}

// GetDB exposes the audit store for background jobs
func (s *Service) GetDB() *Database {
	return s.db
}

// CreateOrder validates, signs and submits an order. With an idempotency key,
// a repeated submission within 24h returns the stored order without calling
// the exchange again. The key is reserved by a pending audit row before the
// exchange is contacted, so concurrent duplicates never both reach it.
func (s *Service) CreateOrder(ctx context.Context, userID string, req *types.OrderRequest, idempotencyKey string) (*types.Order, error) {
	logger := log.With().
		Str("operation", "create_order").
		Str("user_id", userID).
		Str("symbol", req.Symbol).
		Logger()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		existing, err := s.db.GetByIdempotencyKey(ctx, userID, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if existing.ExpiresAt.After(s.now()) {
				return replay(existing)
			}
			if err := s.db.ReleaseKey(ctx, existing.ID); err != nil {
				return nil, err
			}
		}
	}

	sub := &OrderSubmission{
		UserID:    userID,
		ClientID:  req.ClientID,
		Symbol:    req.Symbol,
		Side:      string(req.Side),
		OrderType: string(req.Type),
		Size:      req.Size.String(),
		Outcome:   SubmissionPending,
		CreatedAt: s.now(),
		ExpiresAt: s.now().Add(idempotencyTTL),
	}
	if req.Price != nil {
		sub.Price = req.Price.String()
	}
	if idempotencyKey != "" {
		sub.IdempotencyKey = &idempotencyKey
	}

	if err := s.db.CreateSubmission(ctx, sub); err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		// another request holds the key; replay it if it already finished
		existing, getErr := s.db.GetByIdempotencyKey(ctx, userID, idempotencyKey)
		if getErr != nil {
			return nil, getErr
		}
		if existing != nil {
			return replay(existing)
		}
		return nil, ErrIdempotencyConflict
	}

	order, submitErr := s.submit(ctx, userID, req)

	if submitErr != nil {
		sub.Outcome = SubmissionRejected
		sub.Error = submitErr.Error()
		// a rejected attempt frees the key so the client can retry
		sub.IdempotencyKey = nil
	} else {
		sub.Outcome = SubmissionAccepted
		sub.ExchangeOrderID = order.ID
		if raw, err := json.Marshal(order); err == nil {
			sub.Response = string(raw)
		}
	}
	sub.Signed = req.Signature != ""

	// the exchange has answered; the audit row must land even if the caller left
	if err := s.db.UpdateSubmission(context.WithoutCancel(ctx), sub); err != nil {
		logger.Error().Err(err).Uint("submission_id", sub.ID).Msg("failed to record order submission")
	}

	if submitErr != nil {
		logger.Warn().Err(submitErr).Msg("order rejected")
		return nil, submitErr
	}

	if err := s.recorder.RecordTrade(ctx, userID); err != nil {
		logger.Error().Err(err).Msg("failed to record trade for rewards")
	}

	logger.Info().
		Str("order_id", order.ID).
		Str("type", string(req.Type)).
		Str("status", string(order.Status)).
		Msg("order placed")
	return order, nil
}

func (s *Service) submit(ctx context.Context, userID string, req *types.OrderRequest) (*types.Order, error) {
	if err := s.signer.Sign(ctx, userID, req); err != nil {
		return nil, err
	}
	return s.client.CreateOrder(ctx, req)
}

// CreateTWAP places a TWAP order; the request type must be twap
func (s *Service) CreateTWAP(ctx context.Context, userID string, req *types.OrderRequest, idempotencyKey string) (*types.Order, error) {
	if req.Type != types.OrderTypeTWAP {
		return nil, types.NewValidationError("type", "must be twap")
	}
	return s.CreateOrder(ctx, userID, req, idempotencyKey)
}

func (s *Service) UpdateOrder(ctx context.Context, orderID string, update types.OrderUpdate) (*types.Order, error) {
	return s.client.UpdateOrder(ctx, orderID, update)
}

func (s *Service) CancelOrder(ctx context.Context, orderID string) (*types.CancelResult, error) {
	return s.client.CancelOrder(ctx, orderID)
}

func (s *Service) CancelAllOrders(ctx context.Context, symbol string) (*types.CancelResult, error) {
	return s.client.CancelAllOrders(ctx, symbol)
}

func (s *Service) GetOrders(ctx context.Context, query exchange.OrderQuery) (*types.Page[types.Order], error) {
	return s.client.GetOrders(ctx, query)
}

func (s *Service) GetOrderHistory(ctx context.Context, query exchange.OrderQuery) (*types.Page[types.Order], error) {
	return s.client.GetOrderHistory(ctx, query)
}

func (s *Service) GetTrades(ctx context.Context, symbol string, page exchange.PageQuery) (*types.Page[types.Fill], error) {
	return s.client.GetTradeHistory(ctx, symbol, page)
}

// Submissions lists the caller's audit trail, newest first
func (s *Service) Submissions(ctx context.Context, userID string, limit int) ([]OrderSubmission, error) {
	if err := types.ValidateLimit(limit); err != nil {
		return nil, err
	}
	return s.db.ListSubmissions(ctx, userID, limit)
}

// replay returns the stored order of a finished submission. A submission
// still pending means the first request has not heard back from the exchange.
func replay(sub *OrderSubmission) (*types.Order, error) {
	if sub.Outcome != SubmissionAccepted {
		return nil, ErrIdempotencyConflict
	}
	var order types.Order
	if err := json.Unmarshal([]byte(sub.Response), &order); err != nil {
		return nil, err
	}
	return &order, nil
}
