package schedule

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

type ResourceKind string

const (
	KindSimulator  ResourceKind = "simulator"
	KindInstructor ResourceKind = "instructor"
)

type SlotStatus string

const (
	StatusAvailable SlotStatus = "available"
	StatusBooked    SlotStatus = "booked"
	StatusHold      SlotStatus = "hold"
	StatusBlocked   SlotStatus = "blocked"
	StatusGroup     SlotStatus = "group"
)

const (
	GroupOpen      = "open"
	GroupCancelled = "cancelled"
)

// Clock is a wall-clock time of day in minutes since midnight. It maps to a
// PostgreSQL TIME column and to "HH:MM" in JSON. 24:00 is a valid end time.
type Clock int

const endOfDay Clock = 24 * 60

func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock accepts "HH:MM" or "HH:MM:SS".
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	c := Clock(h*60 + m)
	if h < 0 || m < 0 || m > 59 || c > endOfDay {
		return 0, fmt.Errorf("time of day out of range %q", s)
	}
	return c, nil
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) Value() (driver.Value, error) {
	return fmt.Sprintf("%02d:%02d:00", c.Hour(), c.Minute()), nil
}

func (c *Clock) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		// lib/pq decodes TIME onto 0000-01-01; 24:00:00 lands on the next day
		base := time.Date(0, time.January, 1, 0, 0, 0, 0, v.Location())
		*c = Clock(v.Sub(base) / time.Minute)
		return nil
	case []byte:
		return c.Scan(string(v))
	case string:
		parsed, err := ParseClock(v)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Clock", src)
	}
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseDate parses a calendar date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

// civil drops the clock and zone of t, keeping its calendar date.
func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type Resource struct {
	ID         int64        `db:"id" json:"id"`
	Kind       ResourceKind `db:"kind" json:"kind"`
	Name       string       `db:"name" json:"name"`
	PriceCents int64        `db:"price_cents" json:"price_cents"`
	IsActive   bool         `db:"is_active" json:"is_active"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
}

type Slot struct {
	ID                int64      `db:"id" json:"id"`
	ResourceID        int64      `db:"resource_id" json:"resource_id"`
	Date              time.Time  `db:"slot_date" json:"-"`
	StartTime         Clock      `db:"start_time" json:"start_time"`
	EndTime           Clock      `db:"end_time" json:"end_time"`
	Status            SlotStatus `db:"status" json:"status"`
	HoldUntil         *time.Time `db:"hold_until" json:"hold_until,omitempty"`
	HoldTransactionID *int64     `db:"hold_transaction_id" json:"-"`
	BlockID           *int64     `db:"block_id" json:"block_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

func (s Slot) MarshalJSON() ([]byte, error) {
	type plain Slot
	return json.Marshal(struct {
		plain
		Date string `json:"date"`
	}{plain(s), s.Date.Format(DateLayout)})
}

// StartsAt returns the slot start as an instant in loc.
func (s Slot) StartsAt(loc *time.Location) time.Time {
	return time.Date(s.Date.Year(), s.Date.Month(), s.Date.Day(), s.StartTime.Hour(), s.StartTime.Minute(), 0, 0, loc)
}

// DurationMinutes is the slot length.
func (s Slot) DurationMinutes() int {
	return int(s.EndTime - s.StartTime)
}

// Block withholds matching slots from booking. Exactly one of Weekday
// (recurring, time.Weekday numbering) or BlockDate (one-off) is set. A nil
// ResourceID applies to every resource.
type Block struct {
	ID         int64      `db:"id" json:"id"`
	ResourceID *int64     `db:"resource_id" json:"resource_id,omitempty"`
	Weekday    *int       `db:"weekday" json:"weekday,omitempty"`
	BlockDate  *time.Time `db:"block_date" json:"block_date,omitempty"`
	StartTime  Clock      `db:"start_time" json:"start_time"`
	EndTime    Clock      `db:"end_time" json:"end_time"`
	Reason     string     `db:"reason" json:"reason"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

type GroupTraining struct {
	ID                  int64     `db:"id" json:"id"`
	SlotID              int64     `db:"slot_id" json:"slot_id"`
	Title               string    `db:"title" json:"title"`
	MaxParticipants     int       `db:"max_participants" json:"max_participants"`
	CurrentParticipants int       `db:"current_participants" json:"current_participants"`
	PriceCents          int64     `db:"price_cents" json:"price_cents"`
	Status              string    `db:"status" json:"status"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// FreePlaces is how many participants can still join.
func (g GroupTraining) FreePlaces() int {
	if g.Status != GroupOpen {
		return 0
	}
	return g.MaxParticipants - g.CurrentParticipants
}

type GroupTrainingWithSlot struct {
	GroupTraining
	ResourceID int64     `db:"resource_id" json:"resource_id"`
	SlotDate   time.Time `db:"slot_date" json:"slot_date"`
	StartTime  Clock     `db:"start_time" json:"start_time"`
	EndTime    Clock     `db:"end_time" json:"end_time"`
}

// PlannedSlot is a slot GenerateSlots intends to insert.
type PlannedSlot struct {
	ResourceID int64
	Date       time.Time
	StartTime  Clock
	EndTime    Clock
	Status     SlotStatus
	BlockID    *int64
}

// ReleasedHold reports a hold the sweeper returned to available.
type ReleasedHold struct {
	SlotID        int64  `db:"id"`
	TransactionID *int64 `db:"hold_transaction_id"`
}

type CreateResourceRequest struct {
	Kind       string `json:"kind" binding:"required,oneof=simulator instructor"`
	Name       string `json:"name" binding:"required,max=120"`
	PriceCents int64  `json:"price_cents" binding:"gte=0"`
}

type GenerateSlotsRequest struct {
	ResourceIDs []int64 `json:"resource_ids" binding:"required,min=1,dive,gt=0"`
	From        string  `json:"from" binding:"required"`
	To          string  `json:"to"`
	DayStart    string  `json:"day_start" binding:"required"`
	DayEnd      string  `json:"day_end" binding:"required"`
	StepMinutes int     `json:"step_minutes" binding:"required,min=15,max=240"`
}

type GenerateSlotsResult struct {
	Planned int `json:"planned"`
	Created int `json:"created"`
	Blocked int `json:"blocked"`
}

type CreateBlockRequest struct {
	ResourceID *int64 `json:"resource_id" binding:"omitempty,gt=0"`
	Weekday    *int   `json:"weekday" binding:"omitempty,min=0,max=6"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time" binding:"required"`
	EndTime    string `json:"end_time" binding:"required"`
	Reason     string `json:"reason" binding:"max=200"`
}

type CreateBlockResult struct {
	Block        *Block `json:"block"`
	SlotsBlocked int64  `json:"slots_blocked"`
}

type CreateGroupTrainingRequest struct {
	SlotID          int64  `json:"slot_id" binding:"required,gt=0"`
	Title           string `json:"title" binding:"required,max=120"`
	MaxParticipants int    `json:"max_participants" binding:"required,min=1,max=50"`
	PriceCents      int64  `json:"price_cents" binding:"gte=0"`
}
