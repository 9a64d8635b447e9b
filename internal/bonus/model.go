package bonus

import "time"

type Type string

const (
	TypeRegistration Type = "registration"
	TypeBooking      Type = "booking"
	TypeMilestone    Type = "milestone"
	TypeTimeOfDay    Type = "time_of_day"
	TypeBirthday     Type = "birthday"
	TypeReferral     Type = "referral"
)

func (t Type) Valid() bool {
	switch t {
	case TypeRegistration, TypeBooking, TypeMilestone, TypeTimeOfDay, TypeBirthday, TypeReferral:
		return true
	}
	return false
}

const (
	StatusCredited = "credited"
	StatusRevoked  = "revoked"
)

// Setting is an admin-configured bonus rule. Zero limits mean "no limit".
// The time-of-day window is [HourFrom, HourTo) and wraps past midnight when
// HourTo <= HourFrom.
type Setting struct {
	ID             int64      `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	BonusType      Type       `db:"bonus_type" json:"bonus_type"`
	AmountCents    int64      `db:"amount_cents" json:"amount_cents"`
	MinAmountCents int64      `db:"min_amount_cents" json:"min_amount_cents"`
	MaxPerClient   int        `db:"max_per_client" json:"max_per_client"`
	MilestoneCount int        `db:"milestone_count" json:"milestone_count"`
	HourFrom       int        `db:"hour_from" json:"hour_from"`
	HourTo         int        `db:"hour_to" json:"hour_to"`
	ValidFrom      *time.Time `db:"valid_from" json:"valid_from,omitempty"`
	ValidUntil     *time.Time `db:"valid_until" json:"valid_until,omitempty"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// EventData carries what the triggering event knows. Only the fields relevant
// to the bonus type are set.
type EventData struct {
	BookingID        int64     `json:"booking_id,omitempty"`
	AmountCents      int64     `json:"amount_cents,omitempty"`
	StartsAt         time.Time `json:"starts_at,omitempty"`
	ReferredClientID int64     `json:"referred_client_id,omitempty"`
	// CompletedBefore is the client's completed-booking count before the
	// completion that triggered the event.
	CompletedBefore int `json:"completed_before,omitempty"`
}

// Facts are the per-client numbers a rule is evaluated against, read inside
// the awarding transaction.
type Facts struct {
	Awarded   int        `db:"awarded"`
	BirthDate *time.Time `db:"birth_date"`
}

type Award struct {
	ID                  int64  `json:"id"`
	SettingID           int64  `json:"bonus_setting_id"`
	ClientID            int64  `json:"client_id"`
	Name                string `json:"name"`
	Type                Type   `json:"bonus_type"`
	AmountCents         int64  `json:"amount_cents"`
	PeriodKey           string `json:"period_key"`
	WalletTransactionID int64  `json:"wallet_transaction_id"`
}

// Transaction is a bonus_transactions row with its rule name.
type Transaction struct {
	ID                  int64     `db:"id" json:"id"`
	BonusSettingID      int64     `db:"bonus_setting_id" json:"bonus_setting_id"`
	Name                string    `db:"name" json:"name"`
	BonusType           Type      `db:"bonus_type" json:"bonus_type"`
	ClientID            int64     `db:"client_id" json:"client_id"`
	AmountCents         int64     `db:"amount_cents" json:"amount_cents"`
	Status              string    `db:"status" json:"status"`
	PeriodKey           *string   `db:"period_key" json:"period_key,omitempty"`
	WalletTransactionID *int64    `db:"wallet_transaction_id" json:"wallet_transaction_id,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

type CreateSettingRequest struct {
	Name           string     `json:"name" binding:"required,max=120"`
	BonusType      string     `json:"bonus_type" binding:"required,oneof=registration booking milestone time_of_day birthday referral"`
	AmountCents    int64      `json:"amount_cents" binding:"required,gt=0"`
	MinAmountCents int64      `json:"min_amount_cents" binding:"gte=0"`
	MaxPerClient   int        `json:"max_per_client" binding:"gte=0"`
	MilestoneCount int        `json:"milestone_count" binding:"gte=0"`
	HourFrom       int        `json:"hour_from" binding:"min=0,max=23"`
	HourTo         int        `json:"hour_to" binding:"min=0,max=24"`
	ValidFrom      *time.Time `json:"valid_from"`
	ValidUntil     *time.Time `json:"valid_until"`
}
