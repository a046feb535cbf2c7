package stark

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/sha3"

	"github.com/ksred/astrade-api/internal/types"
)

var (
	ErrInvalidKey    = errors.New("invalid stark key")
	ErrDecryptFailed = errors.New("failed to decrypt stark key")
)

const encryptedPrefix = "enc:"

// KeyPair is a Stark key pair as 0x-prefixed hex
type KeyPair struct {
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

// GenerateKeyPair creates a random private key and derives its public key
func GenerateKeyPair() (KeyPair, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return KeyPair{}, fmt.Errorf("generate stark key: %w", err)
	}
	priv := "0x" + hex.EncodeToString(raw)
	pub, err := DerivePublicKey(priv)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{PrivateKey: priv, PublicKey: pub}, nil
}

// DerivePublicKey returns Keccak-256(private || "public"). This is a stand-in
// for the curve multiplication, which the exchange performs on its side.
func DerivePublicKey(privateKey string) (string, error) {
	raw, err := decodeKey(privateKey)
	if err != nil {
		return "", err
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(raw)
	h.Write([]byte("public"))
	return "0x" + hex.EncodeToString(h.Sum(nil)), nil
}

// OrderMessage is the canonical string signed for an order
func OrderMessage(req *types.OrderRequest, domain string) string {
	price := ""
	if req.Price != nil {
		price = req.Price.String()
	}
	return strings.Join([]string{
		req.Symbol,
		string(req.Side),
		req.Size.String(),
		price,
		string(req.Type),
		domain,
	}, "|")
}

// SignOrder signs the order message with HMAC-SHA256 keyed by the private key
func SignOrder(privateKey string, req *types.OrderRequest, domain string) (string, error) {
	raw, err := decodeKey(privateKey)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, raw)
	mac.Write([]byte(OrderMessage(req, domain)))
	return "0x" + hex.EncodeToString(mac.Sum(nil)), nil
}

func decodeKey(key string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(key, "0x"), "0X"))
	if err != nil || len(raw) == 0 {
		return nil, fmt.Errorf("%w: not hex", ErrInvalidKey)
	}
	return raw, nil
}

// KeyCipher seals private keys at rest with XChaCha20-Poly1305. A cipher built
// from an empty secret stores keys as given.
type KeyCipher struct {
	key []byte
}

func NewKeyCipher(secret string) *KeyCipher {
	if secret == "" {
		return &KeyCipher{}
	}
	sum := sha3.Sum256([]byte(secret))
	return &KeyCipher{key: sum[:]}
}

func (c *KeyCipher) Enabled() bool { return len(c.key) > 0 }

func (c *KeyCipher) Encrypt(plaintext string) (string, error) {
	if !c.Enabled() {
		return plaintext, nil
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt; unprefixed values pass through
func (c *KeyCipher) Decrypt(stored string) (string, error) {
	if !strings.HasPrefix(stored, encryptedPrefix) {
		return stored, nil
	}
	if !c.Enabled() {
		return "", fmt.Errorf("%w: no encryption key configured", ErrDecryptFailed)
	}
	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	if len(sealed) < aead.NonceSize() {
		return "", ErrDecryptFailed
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return string(plain), nil
}
