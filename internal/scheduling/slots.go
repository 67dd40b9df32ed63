package scheduling

import (
	"time"

	"github.com/google/uuid"

	"clinic/backend/internal/domain"
)

const DefaultStepMinutes = 5

type SlotQuery struct {
	DoctorID        uuid.UUID
	Date            time.Time
	DurationMinutes int
	StepMinutes     int
}

// GenerateCandidates walks each declared period at StepMinutes from its start
// and keeps the start times whose full duration fits the period and that pass
// the double-booking and capacity checks. Periods must be sorted; the result is
// in chronological order.
func GenerateCandidates(q SlotQuery, snap Snapshot) ([]time.Time, error) {
	if q.DurationMinutes <= 0 {
		return nil, domain.NewValidationError("duration_minutes must be positive")
	}
	step := q.StepMinutes
	if step == 0 {
		step = DefaultStepMinutes
	}
	if step < 0 {
		return nil, domain.NewValidationError("step_minutes must be positive")
	}
	loc := snap.Location
	if loc == nil {
		loc = time.UTC
	}

	occupancy := OccupancyFromReservations(snap.Reservations)
	var out []time.Time
	for _, p := range snap.Periods {
		for start := p.Start; start.Add(q.DurationMinutes) <= p.End; start = start.Add(step) {
			c := Candidate{
				DoctorID:  q.DoctorID,
				StartTime: start.On(q.Date, loc),
				EndTime:   start.Add(q.DurationMinutes).On(q.Date, loc),
			}
			// Clock times inside a skipped DST hour normalize to a different
			// local reading; keep only slots that start as written and fit the period.
			if _, w, err := domain.ProjectOntoDate(c.StartTime, c.EndTime, loc); err != nil || w.Start != start || !domain.Contains(p, w) {
				continue
			}
			if DoubleBooked(c, snap.Reservations) {
				continue
			}
			if RoomsExhausted(c.DoctorID, c.Interval(), occupancy, snap.Rooms) {
				continue
			}
			out = append(out, c.StartTime)
		}
	}
	return out, nil
}
