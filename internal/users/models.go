package users

import "time"

type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"user_id"`
	Email     *string   `gorm:"type:varchar(255);uniqueIndex" json:"email,omitempty"`
	Username  string    `gorm:"type:varchar(64)" json:"username,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Credentials *APICredentials `gorm:"foreignKey:UserID" json:"-"`
}

// APICredentials holds the per-user exchange settings and Stark key pair.
// StarkPrivateKey is sealed when an encryption key is configured.
type APICredentials struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	UserID          string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"user_id"`
	StarkPrivateKey string    `gorm:"type:text;not null" json:"-"`
	StarkPublicKey  string    `gorm:"type:varchar(66);not null" json:"stark_public_key"`
	Environment     string    `gorm:"type:varchar(16);not null;default:testnet" json:"environment"`
	IsMockEnabled   bool      `gorm:"not null;default:true" json:"is_mock_enabled"`
	CreatedAt       time.Time `json:"created_at"`
}

func (APICredentials) TableName() string { return "user_api_credentials" }

func Models() []interface{} {
	return []interface{}{&User{}, &APICredentials{}}
}
