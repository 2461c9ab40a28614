package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Account represents a registered storefront customer.
type Account struct {
	ID                  bson.ObjectID `bson:"_id,omitempty"`
	Email               string        `bson:"email"`
	PasswordHash        string        `bson:"password_hash"`
	ResetTokenHash      string        `bson:"reset_token_hash,omitempty"`
	ResetTokenExpiresAt *time.Time    `bson:"reset_token_expires_at,omitempty"`
	Cart                Cart          `bson:"cart"`
	Version             int64         `bson:"version"`
	CreatedAt           time.Time     `bson:"created_at"`
	UpdatedAt           time.Time     `bson:"updated_at"`
}

// Cart holds the products an account intends to order.
type Cart struct {
	Items []CartItem `bson:"items"`
}

// CartItem is a single product line in a cart.
type CartItem struct {
	ProductID bson.ObjectID `bson:"product_id"`
	Quantity  int           `bson:"quantity"`
}

// HasResetToken reports whether a password reset is outstanding.
// A half-written pair (digest without expiry or the reverse) counts as no token.
func (a *Account) HasResetToken() bool {
	return a.ResetTokenHash != "" && a.ResetTokenExpiresAt != nil
}

// ResetTokenExpired reports whether the outstanding reset token is no longer usable at now.
func (a *Account) ResetTokenExpired(now time.Time) bool {
	return !a.HasResetToken() || !now.Before(*a.ResetTokenExpiresAt)
}
