// Package scheduling holds the booking decisions: overlap, schedule containment
// and room capacity. Everything here is pure; callers read a Snapshot inside
// whatever transaction serializes their writes.
package scheduling

import (
	"time"

	"github.com/google/uuid"

	"clinic/backend/internal/domain"
)

type Candidate struct {
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
}

func (c Candidate) Interval() domain.Interval {
	return domain.Interval{Start: c.StartTime, End: c.EndTime}
}

// Snapshot is the state a booking decision reads.
type Snapshot struct {
	// Periods are the doctor's declared periods on the candidate's date.
	Periods []domain.TimeWindow
	// Reservations holds every committed reservation, for all doctors, that
	// overlaps the candidate's date.
	Reservations []domain.Reservation
	// Rooms is the examination room count; zero disables the capacity check.
	Rooms    int
	Location *time.Location
}

type CheckOptions struct {
	// Ignore excludes one reservation, used when re-validating a reschedule.
	Ignore uuid.UUID
	// SkipContainment is set by callers whose candidates are built from a period.
	SkipContainment bool
}

// Check runs the booking pipeline after employee resolution, short-circuiting
// on the first failure: double booking, schedule containment, room capacity.
func Check(c Candidate, snap Snapshot, opts CheckOptions) error {
	loc := snap.Location
	if loc == nil {
		loc = time.UTC
	}
	_, window, err := domain.ProjectOntoDate(c.StartTime, c.EndTime, loc)
	if err != nil {
		return err
	}

	others := make([]domain.Reservation, 0, len(snap.Reservations))
	for _, r := range snap.Reservations {
		if opts.Ignore != uuid.Nil && r.ID == opts.Ignore {
			continue
		}
		others = append(others, r)
	}

	if DoubleBooked(c, others) {
		return domain.ErrDoubleBooked
	}

	if !opts.SkipContainment && !WithinSchedule(window, snap.Periods) {
		return domain.ErrOutsideSchedule
	}

	if RoomsExhausted(c.DoctorID, c.Interval(), OccupancyFromReservations(others), snap.Rooms) {
		return domain.ErrRoomCapacityExceeded
	}
	return nil
}

// DoubleBooked reports whether the doctor already holds a reservation that
// strictly overlaps the candidate. Back-to-back reservations are allowed.
func DoubleBooked(c Candidate, existing []domain.Reservation) bool {
	span := c.Interval()
	for _, r := range existing {
		if r.DoctorID != c.DoctorID {
			continue
		}
		if r.Interval().Overlaps(span) {
			return true
		}
	}
	return false
}

func WithinSchedule(window domain.TimeWindow, periods []domain.TimeWindow) bool {
	for _, p := range periods {
		if domain.Contains(p, window) {
			return true
		}
	}
	return false
}
