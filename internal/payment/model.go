package payment

import (
	"encoding/json"
	"fmt"
	"time"

	"skibook/internal/schedule"

	"github.com/jmoiron/sqlx/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Failure reasons stored on failed transactions.
const (
	ReasonProviderError     = "provider_error"
	ReasonPaymentFailed     = "payment_failed"
	ReasonHoldExpired       = "hold_expired"
	ReasonAmountMismatch    = "amount_mismatch"
	ReasonCheckoutAbandoned = "checkout_abandoned"
	ReasonCancelledByClient = "cancelled_by_client"
	// ReasonPaidAfterFailure marks a failed transaction whose late payment
	// was credited to the wallet.
	ReasonPaidAfterFailure = "paid_after_failure"
)

type Transaction struct {
	ID                int64          `db:"id" json:"id"`
	OrderID           string         `db:"order_id" json:"order_id"`
	ClientID          int64          `db:"client_id" json:"client_id"`
	SlotID            *int64         `db:"slot_id" json:"slot_id,omitempty"`
	BookingID         *int64         `db:"booking_id" json:"booking_id,omitempty"`
	AmountCents       int64          `db:"amount_cents" json:"amount_cents"`
	Currency          string         `db:"currency" json:"currency"`
	Status            Status         `db:"status" json:"status"`
	Provider          string         `db:"provider" json:"provider"`
	ProviderPaymentID *string        `db:"provider_payment_id" json:"provider_payment_id,omitempty"`
	ProviderStatus    *string        `db:"provider_status" json:"provider_status,omitempty"`
	PaymentURL        *string        `db:"payment_url" json:"payment_url,omitempty"`
	FailureReason     *string        `db:"failure_reason" json:"failure_reason,omitempty"`
	RawPayload        types.JSONText `db:"raw_payload" json:"-"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// BookingData is the booking a checkout pays for, captured at checkout so
// the reconciler can create it without re-reading prices.
type BookingData struct {
	SlotID       int64          `json:"slot_id"`
	ResourceID   int64          `json:"resource_id"`
	ResourceName string         `json:"resource_name"`
	Date         string         `json:"date"`
	StartTime    schedule.Clock `json:"start_time"`
	EndTime      schedule.Clock `json:"end_time"`
	Participants int            `json:"participants"`
	PriceCents   int64          `json:"price_cents"`
}

type rawPayload struct {
	BookingData BookingData `json:"bookingData"`
}

func encodePayload(bd BookingData) (types.JSONText, error) {
	b, err := json.Marshal(rawPayload{BookingData: bd})
	if err != nil {
		return nil, err
	}
	return types.JSONText(b), nil
}

// BookingData decodes the booking captured at checkout.
func (t *Transaction) BookingData() (BookingData, error) {
	var p rawPayload
	if len(t.RawPayload) == 0 {
		return BookingData{}, fmt.Errorf("transaction %s has no booking data", t.OrderID)
	}
	if err := t.RawPayload.Unmarshal(&p); err != nil {
		return BookingData{}, fmt.Errorf("decode booking data of %s: %w", t.OrderID, err)
	}
	if p.BookingData.SlotID == 0 {
		return BookingData{}, fmt.Errorf("transaction %s has no booking data", t.OrderID)
	}
	return p.BookingData, nil
}

// NewTransaction is the pending row written at checkout.
type NewTransaction struct {
	OrderID     string
	ClientID    int64
	SlotID      int64
	AmountCents int64
	Currency    string
	Provider    string
	BookingData BookingData
}

// Update moves a transaction out of From.
type Update struct {
	From           Status
	To             Status
	BookingID      *int64
	ProviderStatus string
	FailureReason  string
}

// State is the provider's view of a payment.
type State string

const (
	StatePending   State = "pending"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Outcome is a verified provider report about one payment.
type Outcome struct {
	Provider       string
	PaymentID      string
	OrderID        string
	State          State
	ProviderStatus string
	AmountCents    int64
	Currency       string
	Reason         string
}

// Result is what applying an outcome did.
type Result string

const (
	ResultCompleted      Result = "completed"
	ResultFailed         Result = "failed"
	ResultHoldExpired    Result = "hold_expired"
	ResultAmountMismatch Result = "amount_mismatch"
	ResultLateCredit     Result = "late_credit"
	ResultDuplicate      Result = "duplicate"
	ResultPending        Result = "pending"
	ResultIgnored        Result = "ignored"
)

type WebhookLog struct {
	ID           int64          `db:"id"`
	Provider     string         `db:"provider"`
	EventType    string         `db:"event_type"`
	PaymentID    string         `db:"payment_id"`
	OrderID      string         `db:"order_id"`
	Status       string         `db:"status"`
	Processed    bool           `db:"processed"`
	ErrorMessage *string        `db:"error_message"`
	Payload      types.JSONText `db:"payload"`
	CreatedAt    time.Time      `db:"created_at"`
}

type CheckoutRequest struct {
	Participants int `json:"participants" binding:"omitempty,min=1,max=4"`
}

type Checkout struct {
	OrderID     string    `json:"order_id"`
	PaymentURL  string    `json:"payment_url"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	HoldUntil   time.Time `json:"hold_until"`
}

type WebhookResponse struct {
	Status string `json:"status"`
}

type ReturnResponse struct {
	OrderID string `json:"order_id"`
	Status  Status `json:"status"`
}
