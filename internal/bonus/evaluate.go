package bonus

import (
	"fmt"
	"time"
)

const periodOnce = "once"

// Evaluate decides whether rule s pays out for this event and returns the
// period key the award is recorded under. At most one award exists per
// (rule, client, period key). now must be in the business time zone.
func Evaluate(s Setting, f Facts, ev EventData, now time.Time) (string, bool) {
	if !s.IsActive || !activeAt(s, now) {
		return "", false
	}
	if s.MaxPerClient > 0 && f.Awarded >= s.MaxPerClient {
		return "", false
	}
	if s.MinAmountCents > 0 && ev.AmountCents < s.MinAmountCents {
		return "", false
	}

	switch s.BonusType {
	case TypeRegistration:
		return periodOnce, true

	case TypeReferral:
		if ev.ReferredClientID == 0 {
			return "", false
		}
		return fmt.Sprintf("referral:%d", ev.ReferredClientID), true

	case TypeBooking:
		if ev.BookingID == 0 {
			return "", false
		}
		return bookingKey(ev.BookingID), true

	case TypeMilestone:
		// only the completion that reaches the threshold pays
		if s.MilestoneCount <= 0 || ev.CompletedBefore+1 != s.MilestoneCount {
			return "", false
		}
		return periodOnce, true

	case TypeTimeOfDay:
		if ev.BookingID == 0 || ev.StartsAt.IsZero() {
			return "", false
		}
		if !inWindow(ev.StartsAt.Hour(), s.HourFrom, s.HourTo) {
			return "", false
		}
		return bookingKey(ev.BookingID), true

	case TypeBirthday:
		if f.BirthDate == nil || !IsBirthday(*f.BirthDate, now) {
			return "", false
		}
		return fmt.Sprintf("birthday:%d", now.Year()), true
	}

	return "", false
}

func activeAt(s Setting, now time.Time) bool {
	if s.ValidFrom != nil && now.Before(*s.ValidFrom) {
		return false
	}
	if s.ValidUntil != nil && now.After(*s.ValidUntil) {
		return false
	}
	return true
}

func inWindow(hour, from, to int) bool {
	if from == to {
		return false
	}
	if from < to {
		return hour >= from && hour < to
	}
	return hour >= from || hour < to
}

// IsBirthday reports whether day falls on the anniversary of birth. People
// born on 29 February celebrate on the 28th in common years.
func IsBirthday(birth, day time.Time) bool {
	month, date := birth.Month(), birth.Day()
	if month == time.February && date == 29 && !isLeap(day.Year()) {
		date = 28
	}
	return day.Month() == month && day.Day() == date
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func bookingKey(id int64) string {
	return fmt.Sprintf("booking:%d", id)
}
