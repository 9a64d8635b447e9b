package bonus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptrTime(t time.Time) *time.Time { return &t }

func TestEvaluate(t *testing.T) {
	now := time.Date(2030, 3, 15, 12, 0, 0, 0, time.UTC)
	morning := time.Date(2030, 3, 20, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2030, 3, 20, 19, 0, 0, 0, time.UTC)
	birth := time.Date(1990, 3, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		setting Setting
		facts   Facts
		event   EventData
		wantKey string
		wantOK  bool
	}{
		{
			name:    "registration pays once",
			setting: Setting{BonusType: TypeRegistration, IsActive: true},
			wantKey: "once",
			wantOK:  true,
		},
		{
			name:    "inactive rule",
			setting: Setting{BonusType: TypeRegistration},
		},
		{
			name:    "not yet valid",
			setting: Setting{BonusType: TypeRegistration, IsActive: true, ValidFrom: ptrTime(now.Add(time.Hour))},
		},
		{
			name:    "expired",
			setting: Setting{BonusType: TypeRegistration, IsActive: true, ValidUntil: ptrTime(now.Add(-time.Hour))},
		},
		{
			name:    "per-client cap reached",
			setting: Setting{BonusType: TypeBooking, IsActive: true, MaxPerClient: 3},
			facts:   Facts{Awarded: 3},
			event:   EventData{BookingID: 9},
		},
		{
			name:    "booking keyed by booking id",
			setting: Setting{BonusType: TypeBooking, IsActive: true, MaxPerClient: 3},
			facts:   Facts{Awarded: 2},
			event:   EventData{BookingID: 9, AmountCents: 300000},
			wantKey: "booking:9",
			wantOK:  true,
		},
		{
			name:    "booking below minimum amount",
			setting: Setting{BonusType: TypeBooking, IsActive: true, MinAmountCents: 500000},
			event:   EventData{BookingID: 9, AmountCents: 300000},
		},
		{
			name:    "milestone below threshold",
			setting: Setting{BonusType: TypeMilestone, IsActive: true, MilestoneCount: 10},
			event:   EventData{BookingID: 9, CompletedBefore: 8},
		},
		{
			name:    "milestone 9 to 10",
			setting: Setting{BonusType: TypeMilestone, IsActive: true, MilestoneCount: 10},
			event:   EventData{BookingID: 9, CompletedBefore: 9},
			wantKey: "once",
			wantOK:  true,
		},
		{
			name:    "milestone already passed before the rule existed",
			setting: Setting{BonusType: TypeMilestone, IsActive: true, MilestoneCount: 10},
			event:   EventData{BookingID: 9, CompletedBefore: 15},
		},
		{
			name:    "milestone without threshold",
			setting: Setting{BonusType: TypeMilestone, IsActive: true},
			event:   EventData{BookingID: 9, CompletedBefore: 49},
		},
		{
			name:    "morning window hit",
			setting: Setting{BonusType: TypeTimeOfDay, IsActive: true, HourFrom: 7, HourTo: 10},
			event:   EventData{BookingID: 4, StartsAt: morning},
			wantKey: "booking:4",
			wantOK:  true,
		},
		{
			name:    "morning window miss",
			setting: Setting{BonusType: TypeTimeOfDay, IsActive: true, HourFrom: 7, HourTo: 10},
			event:   EventData{BookingID: 4, StartsAt: evening},
		},
		{
			name:    "window across midnight",
			setting: Setting{BonusType: TypeTimeOfDay, IsActive: true, HourFrom: 18, HourTo: 2},
			event:   EventData{BookingID: 5, StartsAt: evening},
			wantKey: "booking:5",
			wantOK:  true,
		},
		{
			name:    "birthday keyed by year",
			setting: Setting{BonusType: TypeBirthday, IsActive: true},
			facts:   Facts{BirthDate: &birth},
			wantKey: "birthday:2030",
			wantOK:  true,
		},
		{
			name:    "birthday without birth date",
			setting: Setting{BonusType: TypeBirthday, IsActive: true},
		},
		{
			name:    "referral keyed by referred client",
			setting: Setting{BonusType: TypeReferral, IsActive: true},
			event:   EventData{ReferredClientID: 77},
			wantKey: "referral:77",
			wantOK:  true,
		},
		{
			name:    "referral without referred client",
			setting: Setting{BonusType: TypeReferral, IsActive: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := Evaluate(tt.setting, tt.facts, tt.event, now)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestIsBirthday(t *testing.T) {
	leapling := time.Date(2000, 2, 29, 0, 0, 0, 0, time.UTC)

	assert.True(t, IsBirthday(leapling, time.Date(2031, 2, 28, 9, 0, 0, 0, time.UTC)))
	assert.False(t, IsBirthday(leapling, time.Date(2032, 2, 28, 9, 0, 0, 0, time.UTC)))
	assert.True(t, IsBirthday(leapling, time.Date(2032, 2, 29, 9, 0, 0, 0, time.UTC)))
	assert.False(t, IsBirthday(leapling, time.Date(2031, 3, 1, 9, 0, 0, 0, time.UTC)))
}

func TestType_Valid(t *testing.T) {
	assert.True(t, TypeMilestone.Valid())
	assert.False(t, Type("cashback").Valid())
}
