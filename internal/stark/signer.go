package stark

import (
	"context"

	"github.com/ksred/astrade-api/internal/types"
)

// KeyStore yields a user's unsealed Stark private key
type KeyStore interface {
	StarkPrivateKey(ctx context.Context, userID string) (string, error)
}

// OrderSigner signs with the gateway account when one is configured and
// otherwise with the key pair generated for the user at sign-up
type OrderSigner struct {
	account *Service
	keys    KeyStore
}

func NewOrderSigner(account *Service, keys KeyStore) *OrderSigner {
	return &OrderSigner{account: account, keys: keys}
}

func (s *OrderSigner) Sign(ctx context.Context, userID string, req *types.OrderRequest) error {
	if s.account.Configured() {
		return s.account.Sign(req)
	}
	if s.keys == nil || userID == "" {
		return nil
	}

	privateKey, err := s.keys.StarkPrivateKey(ctx, userID)
	if err != nil {
		return err
	}
	publicKey, err := DerivePublicKey(privateKey)
	if err != nil {
		return err
	}
	sig, err := SignOrder(privateKey, req, s.account.cfg.Domain)
	if err != nil {
		return err
	}
	req.Signature = sig
	req.StarkKey = publicKey
	return nil
}
