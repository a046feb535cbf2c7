package stark

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ksred/astrade-api/internal/config"
	"github.com/ksred/astrade-api/internal/types"
	"github.com/ksred/astrade-api/pkg/response"
)

// Service holds the gateway's own Stark account used to sign orders
type Service struct {
	cfg       config.StarkConfig
	publicKey string
}

// AccountInfo describes the configured Stark account
type AccountInfo struct {
	VaultID    string `json:"vault,omitempty"`
	PublicKey  string `json:"public_key,omitempty"`
	Domain     string `json:"signing_domain"`
	Configured bool   `json:"configured"`
}

type Health struct {
	Status            string `json:"status"`
	Service           string `json:"service"`
	AccountConfigured bool   `json:"account_configured"`
	Error             string `json:"error,omitempty"`
}

func NewService(cfg config.StarkConfig) *Service {
	s := &Service{cfg: cfg, publicKey: cfg.PublicKey}
	if s.publicKey == "" && cfg.PrivateKey != "" {
		pub, err := DerivePublicKey(cfg.PrivateKey)
		if err != nil {
			log.Warn().Err(err).Msg("configured stark private key is not valid hex, signing disabled")
			s.cfg.PrivateKey = ""
		} else {
			s.publicKey = pub
		}
	}
	return s
}

// Configured reports whether orders can be signed
func (s *Service) Configured() bool {
	return s.cfg.PrivateKey != ""
}

// Sign attaches a signature and the public key to req when a key is configured
func (s *Service) Sign(req *types.OrderRequest) error {
	if !s.Configured() {
		return nil
	}
	sig, err := SignOrder(s.cfg.PrivateKey, req, s.cfg.Domain)
	if err != nil {
		return err
	}
	req.Signature = sig
	req.StarkKey = s.publicKey
	return nil
}

func (s *Service) Account() AccountInfo {
	return AccountInfo{
		VaultID:    s.cfg.VaultID,
		PublicKey:  s.publicKey,
		Domain:     s.cfg.Domain,
		Configured: s.Configured(),
	}
}

func (s *Service) Health() Health {
	h := Health{Status: "healthy", Service: "stark_trading", AccountConfigured: s.Configured() && s.cfg.VaultID != ""}
	if !s.Configured() {
		h.Status = "degraded"
		h.Error = "stark private key not configured"
	}
	return h
}

// GinHandlers contains HTTP handlers for the Stark account endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

func (h *GinHandlers) AccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.OK(c, h.service.Account())
	}
}

func (h *GinHandlers) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.OK(c, h.service.Health())
	}
}
