package schedule

import (
	"fmt"
	"time"
)

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) share an instant.
// Adjacent windows (aEnd == bStart) do not overlap. Booking, holds and blocks
// all use this predicate; overlapCond is its SQL form.
func Overlaps(aStart, aEnd, bStart, bEnd Clock) bool {
	return aStart < bEnd && aEnd > bStart
}

// overlapCond renders Overlaps for the row alias against two placeholders.
func overlapCond(alias, startArg, endArg string) string {
	return fmt.Sprintf("%[1]s.start_time < %[3]s AND %[1]s.end_time > %[2]s", alias, startArg, endArg)
}

// Covers reports whether the block withholds a window of resourceID on date.
func (b Block) Covers(resourceID int64, date time.Time, start, end Clock) bool {
	if !b.IsActive {
		return false
	}
	if b.ResourceID != nil && *b.ResourceID != resourceID {
		return false
	}
	switch {
	case b.Weekday != nil:
		if time.Weekday(*b.Weekday) != date.Weekday() {
			return false
		}
	case b.BlockDate != nil:
		if !civil(*b.BlockDate).Equal(civil(date)) {
			return false
		}
	default:
		return false
	}
	return Overlaps(start, end, b.StartTime, b.EndTime)
}

// Validate checks the block shape before it is stored.
func (b Block) Validate() error {
	if (b.Weekday == nil) == (b.BlockDate == nil) {
		return fmt.Errorf("%w: exactly one of weekday or date is required", ErrInvalidBlock)
	}
	if b.Weekday != nil && (*b.Weekday < 0 || *b.Weekday > 6) {
		return fmt.Errorf("%w: weekday must be 0..6", ErrInvalidBlock)
	}
	if b.EndTime <= b.StartTime {
		return ErrInvalidTimeRange
	}
	return nil
}

// SlotPlan describes a generation run: every date in [From, To] for every
// resource, cut into Step-minute slots between DayStart and DayEnd.
type SlotPlan struct {
	ResourceIDs []int64
	From        time.Time
	To          time.Time
	DayStart    Clock
	DayEnd      Clock
	Step        int
}

const maxPlanDays = 92

func (p SlotPlan) Validate() error {
	if p.DayEnd <= p.DayStart || p.Step <= 0 || int(p.DayEnd-p.DayStart) < p.Step {
		return ErrInvalidTimeRange
	}
	from, to := civil(p.From), civil(p.To)
	if to.Before(from) || to.Sub(from) > maxPlanDays*24*time.Hour {
		return ErrInvalidDateRange
	}
	if len(p.ResourceIDs) == 0 {
		return ErrResourceNotFound
	}
	return nil
}

// PlanSlots lays out the slots of p. A slot covered by an active block is
// planned as blocked and linked to the first block that covers it.
func PlanSlots(p SlotPlan, blocks []Block) []PlannedSlot {
	var out []PlannedSlot
	step := Clock(p.Step)
	to := civil(p.To)
	for _, resourceID := range p.ResourceIDs {
		for day := civil(p.From); !day.After(to); day = day.AddDate(0, 0, 1) {
			for start := p.DayStart; start+step <= p.DayEnd; start += step {
				ps := PlannedSlot{
					ResourceID: resourceID,
					Date:       day,
					StartTime:  start,
					EndTime:    start + step,
					Status:     StatusAvailable,
				}
				for i := range blocks {
					if blocks[i].Covers(resourceID, day, ps.StartTime, ps.EndTime) {
						id := blocks[i].ID
						ps.Status = StatusBlocked
						ps.BlockID = &id
						break
					}
				}
				out = append(out, ps)
			}
		}
	}
	return out
}

type slotSpan struct {
	ID         int64     `db:"id"`
	ResourceID int64     `db:"resource_id"`
	Date       time.Time `db:"slot_date"`
	StartTime  Clock     `db:"start_time"`
	EndTime    Clock     `db:"end_time"`
}

// disjointSpans walks spans sorted by resource, date and start time and keeps
// the ids of those not overlapping an already kept span of the same resource
// and day. The last kept span has the latest end, so checking it is enough.
func disjointSpans(spans []slotSpan) []int64 {
	var (
		ids  []int64
		last *slotSpan
	)
	for i := range spans {
		sp := &spans[i]
		if last != nil && last.ResourceID == sp.ResourceID && last.Date.Equal(sp.Date) &&
			Overlaps(last.StartTime, last.EndTime, sp.StartTime, sp.EndTime) {
			continue
		}
		ids = append(ids, sp.ID)
		last = sp
	}
	return ids
}
