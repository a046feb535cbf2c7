package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/astrade-api/internal/stark"
	"github.com/ksred/astrade-api/internal/types"
	"github.com/ksred/astrade-api/pkg/response"
)

// Service creates and looks up gateway users
type Service struct {
	db     *Database
	cipher *stark.KeyCipher
}

func NewService(gormDB *gorm.DB, cipher *stark.KeyCipher) *Service {
	return &Service{db: NewDatabase(gormDB), cipher: cipher}
}

type CreateRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

type CreateResult struct {
	UserID         string `json:"user_id"`
	StarkPublicKey string `json:"stark_public_key"`
	Created        bool   `json:"created"`
	Message        string `json:"message"`
}

// UserInfo is the public view of a user
type UserInfo struct {
	UserID            string    `json:"user_id"`
	Email             *string   `json:"email"`
	Username          string    `json:"username,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	HasAPICredentials bool      `json:"has_api_credentials"`
}

// CreateUser registers a user with a fresh Stark key pair. A request with an
// email that is already registered returns the existing user unchanged.
func (s *Service) CreateUser(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, types.NewValidationError("email", "is not a valid address")
		}
		existing, err := s.db.GetUserByEmail(ctx, email)
		if err == nil {
			return existingResult(existing), nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	keys, err := stark.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	sealed, err := s.cipher.Encrypt(keys.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("seal stark key: %w", err)
	}

	user := &User{ID: uuid.NewString(), Username: strings.TrimSpace(req.Username)}
	if email != "" {
		user.Email = &email
	}

	err = s.db.Transaction(ctx, func(tx *Database) error {
		if err := tx.CreateUser(user); err != nil {
			return err
		}
		return tx.CreateCredentials(&APICredentials{
			UserID:          user.ID,
			StarkPrivateKey: sealed,
			StarkPublicKey:  keys.PublicKey,
			Environment:     "testnet",
			IsMockEnabled:   true,
		})
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) && email != "" {
		// lost a race with a concurrent signup for the same email
		existing, lookupErr := s.db.GetUserByEmail(ctx, email)
		if lookupErr == nil {
			return existingResult(existing), nil
		}
	}
	if err != nil {
		log.Error().Err(err).Str("operation", "create_user").Msg("failed to create user")
		return nil, err
	}

	log.Info().Str("operation", "create_user").Str("user_id", user.ID).Msg("user created")
	return &CreateResult{
		UserID:         user.ID,
		StarkPublicKey: keys.PublicKey,
		Created:        true,
		Message:        "User created successfully",
	}, nil
}

func existingResult(user *User) *CreateResult {
	res := &CreateResult{UserID: user.ID, Message: "User already exists"}
	if user.Credentials != nil {
		res.StarkPublicKey = user.Credentials.StarkPublicKey
	}
	return res
}

func (s *Service) GetUser(ctx context.Context, id string) (*UserInfo, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, types.NewValidationError("user_id", "must be a UUID")
	}
	user, err := s.db.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return &UserInfo{
		UserID:            user.ID,
		Email:             user.Email,
		Username:          user.Username,
		CreatedAt:         user.CreatedAt,
		HasAPICredentials: user.Credentials != nil,
	}, nil
}

// UserExists is used by the auth middleware
func (s *Service) UserExists(ctx context.Context, id string) (bool, error) {
	return s.db.UserExists(ctx, id)
}

// StarkPrivateKey returns a user's decrypted private key
func (s *Service) StarkPrivateKey(ctx context.Context, id string) (string, error) {
	user, err := s.db.GetUser(ctx, id)
	if err != nil {
		return "", err
	}
	if user.Credentials == nil {
		return "", fmt.Errorf("user %s has no credentials: %w", id, response.ErrNotFound)
	}
	return s.cipher.Decrypt(user.Credentials.StarkPrivateKey)
}

// GinHandlers contains HTTP handlers for user endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// CreateUserHandler answers 201 for a new user and 200 for an existing email
func (h *GinHandlers) CreateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		result, err := h.service.CreateUser(c.Request.Context(), req)
		if err != nil {
			response.Fail(c, err)
			return
		}
		if !result.Created {
			response.OK(c, result)
			return
		}
		response.Success(c, result)
	}
}

func (h *GinHandlers) GetUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.service.GetUser(c.Request.Context(), c.Param("user_id"))
		response.Handle(c, user, err)
	}
}

// UserEmail is used when issuing tokens
func (s *Service) UserEmail(ctx context.Context, id string) (string, bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", false, nil
	}
	user, err := s.db.GetUser(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if user.Email == nil {
		return "", true, nil
	}
	return *user.Email, true, nil
}
