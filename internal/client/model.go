package client

import "time"

type Client struct {
	ID           int64      `db:"id" json:"id"`
	FullName     string     `db:"full_name" json:"full_name"`
	Phone        string     `db:"phone" json:"phone"`
	Email        *string    `db:"email" json:"email,omitempty"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         string     `db:"role" json:"role"`
	BirthDate    *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	TelegramID   *int64     `db:"telegram_id" json:"telegram_id,omitempty"`
	ReferralCode string     `db:"referral_code" json:"referral_code"`
	ReferredBy   *int64     `db:"referred_by" json:"referred_by,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// NewClient is the row written at registration.
type NewClient struct {
	FullName     string
	Phone        string
	Email        *string
	PasswordHash string
	Role         string
	BirthDate    *time.Time
	ReferralCode string
	ReferredBy   *int64
}

type RegisterRequest struct {
	FullName     string `json:"full_name" binding:"required,min=2,max=100"`
	Phone        string `json:"phone" binding:"required,e164"`
	Email        string `json:"email" binding:"omitempty,email"`
	Password     string `json:"password" binding:"required,min=8,max=72"`
	BirthDate    string `json:"birth_date" binding:"omitempty,datetime=2006-01-02"`
	ReferralCode string `json:"referral_code" binding:"omitempty,max=32"`
}

type LoginRequest struct {
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Client       Client `json:"client"`
}
