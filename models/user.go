package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the account a batch job or a single verify/enrich call is
// billed against. Trimmed from the teacher's User model down to the
// authentication and ownership fields the engine's operations actually
// need; the credit/plan/Stripe/OAuth-provider fields belonged to the
// campaign-sending product this repo doesn't carry forward.
type User struct {
	gorm.Model

	Email         string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash  string `gorm:"not null" json:"-"`
	EmailVerified bool   `gorm:"default:false" json:"email_verified"`

	Name     *string `json:"name,omitempty"`
	IsActive bool    `gorm:"default:true" json:"is_active"`
	IsAdmin  bool    `gorm:"default:false" json:"is_admin"`

	APIKeys []APIKey `gorm:"foreignKey:UserID" json:"api_keys,omitempty"`
}

// APIKey lets a user call the engine's HTTP interface without a JWT
// session, for server-to-server integrations (§6's inbound interface is
// meant to be called by other systems, not just a logged-in browser).
type APIKey struct {
	gorm.Model
	UserID   uint       `gorm:"not null;index" json:"user_id"`
	Key      string     `gorm:"uniqueIndex;not null" json:"key"`
	Name     string     `gorm:"not null" json:"name"`
	LastUsed *time.Time `json:"last_used"`
	IsActive bool       `gorm:"default:true" json:"is_active"`

	User User `json:"-"`
}
