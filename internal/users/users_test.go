package users

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/astrade-api/internal/stark"
	"github.com/ksred/astrade-api/internal/types"
)

func newTestService(t *testing.T, secret string) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatal(err)
	}
	return NewService(db, stark.NewKeyCipher(secret))
}

func TestCreateUser_DedupesByEmail(t *testing.T) {
	svc := newTestService(t, "")
	ctx := context.Background()

	first, err := svc.CreateUser(ctx, CreateRequest{Email: "Pilot@AsTrade.io"})
	if err != nil {
		t.Fatal(err)
	}
	if !first.Created || first.StarkPublicKey == "" {
		t.Fatalf("first = %+v", first)
	}

	second, err := svc.CreateUser(ctx, CreateRequest{Email: "pilot@astrade.io"})
	if err != nil {
		t.Fatal(err)
	}
	if second.Created || second.UserID != first.UserID || second.StarkPublicKey != first.StarkPublicKey {
		t.Errorf("second = %+v, want existing %s", second, first.UserID)
	}
}

func TestCreateUser_WithoutEmail(t *testing.T) {
	svc := newTestService(t, "")
	ctx := context.Background()

	a, err := svc.CreateUser(ctx, CreateRequest{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.CreateUser(ctx, CreateRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if a.UserID == b.UserID {
		t.Error("anonymous users should be distinct")
	}
}

func TestCreateUser_InvalidEmail(t *testing.T) {
	svc := newTestService(t, "")
	if _, err := svc.CreateUser(context.Background(), CreateRequest{Email: "not-an-email"}); !errors.Is(err, types.ErrValidation) {
		t.Errorf("got %v", err)
	}
}

func TestStarkKeyEncryptedAtRest(t *testing.T) {
	svc := newTestService(t, "at-rest")
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, CreateRequest{Email: "vault@astrade.io"})
	if err != nil {
		t.Fatal(err)
	}

	var creds APICredentials
	if err := svc.db.db.Where("user_id = ?", created.UserID).First(&creds).Error; err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(creds.StarkPrivateKey, "enc:") {
		t.Fatalf("stored key is not sealed: %q", creds.StarkPrivateKey)
	}
	if creds.Environment != "testnet" || !creds.IsMockEnabled {
		t.Errorf("creds = %+v", creds)
	}

	priv, err := svc.StarkPrivateKey(ctx, created.UserID)
	if err != nil {
		t.Fatal(err)
	}
	pub, _ := stark.DerivePublicKey(priv)
	if pub != created.StarkPublicKey {
		t.Error("decrypted key does not match the public key")
	}
}

func TestGetUser(t *testing.T) {
	svc := newTestService(t, "")
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, CreateRequest{Email: "a@b.io", Username: "nova"})
	if err != nil {
		t.Fatal(err)
	}
	info, err := svc.GetUser(ctx, created.UserID)
	if err != nil {
		t.Fatal(err)
	}
	if !info.HasAPICredentials || info.Username != "nova" || *info.Email != "a@b.io" {
		t.Errorf("info = %+v", info)
	}

	if _, err := svc.GetUser(ctx, uuid.NewString()); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("missing user: %v", err)
	}
	if _, err := svc.GetUser(ctx, "42"); !errors.Is(err, types.ErrValidation) {
		t.Errorf("bad id: %v", err)
	}

	exists, err := svc.UserExists(ctx, created.UserID)
	if err != nil || !exists {
		t.Errorf("exists = %v, %v", exists, err)
	}
}

func TestHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestService(t, "")
	h := NewGinHandlers(svc)
	router := gin.New()
	router.POST("/users", h.CreateUserHandler())
	router.GET("/users/:user_id", h.GetUserHandler())

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(`{"email":"h@astrade.io"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}
	if code := post(); code != http.StatusCreated {
		t.Errorf("first create = %d", code)
	}
	if code := post(); code != http.StatusOK {
		t.Errorf("duplicate create = %d", code)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/"+uuid.NewString(), nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing user = %d", w.Code)
	}
}
