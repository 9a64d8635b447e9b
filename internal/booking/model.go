package booking

import (
	"time"

	"skibook/internal/schedule"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type PaymentMethod string

const (
	MethodCard   PaymentMethod = "card"
	MethodWallet PaymentMethod = "wallet"
	MethodAdmin  PaymentMethod = "admin"
)

// Booking is a client's training session. It owns its slot for individual
// trainings; group bookings share the group's slot.
type Booking struct {
	ID              int64         `db:"id" json:"id"`
	ClientID        int64         `db:"client_id" json:"client_id"`
	SlotID          int64         `db:"slot_id" json:"slot_id"`
	GroupTrainingID *int64        `db:"group_training_id" json:"group_training_id,omitempty"`
	TransactionID   *int64        `db:"transaction_id" json:"transaction_id,omitempty"`
	Participants    int           `db:"participants" json:"participants"`
	PriceCents      int64         `db:"price_cents" json:"price_cents"`
	PaymentMethod   PaymentMethod `db:"payment_method" json:"payment_method"`
	Status          Status        `db:"status" json:"status"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

type BookingWithDetails struct {
	Booking
	ResourceID   int64          `db:"resource_id" json:"resource_id"`
	ResourceName string         `db:"resource_name" json:"resource_name"`
	SlotDate     time.Time      `db:"slot_date" json:"slot_date"`
	StartTime    schedule.Clock `db:"start_time" json:"start_time"`
	EndTime      schedule.Clock `db:"end_time" json:"end_time"`
	ClientName   string         `db:"client_name" json:"client_name"`
	ClientPhone  string         `db:"client_phone" json:"client_phone"`
}

// NewBooking is the row written when a booking is created.
type NewBooking struct {
	ClientID        int64
	SlotID          int64
	GroupTrainingID *int64
	TransactionID   *int64
	Participants    int
	PriceCents      int64
	PaymentMethod   PaymentMethod
}

// HoldConversion describes a paid checkout whose hold becomes a booking.
type HoldConversion struct {
	ClientID      int64
	SlotID        int64
	TransactionID int64
	Participants  int
	PriceCents    int64
}

type BookSlotRequest struct {
	Participants  int    `json:"participants" binding:"omitempty,min=1,max=4"`
	PaymentMethod string `json:"payment_method" binding:"omitempty,oneof=wallet admin"`
	// ClientID lets an admin book on behalf of a client.
	ClientID int64 `json:"client_id" binding:"omitempty,gt=0"`
}

type JoinGroupRequest struct {
	Participants int `json:"participants" binding:"omitempty,min=1,max=10"`
}

type BookSlotResponse struct {
	Booking     *Booking `json:"booking"`
	PaidWith    string   `json:"paid_with" example:"wallet"`
	AmountCents int64    `json:"amount_cents" example:"300000"`
}

type CancelBookingResponse struct {
	Message     string `json:"message" example:"Booking cancelled successfully"`
	RefundCents int64  `json:"refund_cents"`
}
