package scheduling

import (
	"time"

	"github.com/google/uuid"

	"clinic/backend/internal/domain"
)

// Occupancy is one interval during which a doctor holds an examination room.
type Occupancy struct {
	DoctorID uuid.UUID
	Span     domain.Interval
}

// OccupancyFromReservations is the binding occupancy source.
func OccupancyFromReservations(rs []domain.Reservation) []Occupancy {
	out := make([]Occupancy, 0, len(rs))
	for _, r := range rs {
		out = append(out, Occupancy{DoctorID: r.DoctorID, Span: r.Interval()})
	}
	return out
}

// OccupancyFromSchedules treats declared availability as occupancy. It only
// backs advisory warnings while schedules are being authored.
func OccupancyFromSchedules(entries []domain.ScheduleEntry, loc *time.Location) []Occupancy {
	out := make([]Occupancy, 0, len(entries))
	for _, e := range entries {
		for _, p := range e.Periods {
			out = append(out, Occupancy{DoctorID: e.DoctorID, Span: p.Span(e.Date, loc)})
		}
	}
	return out
}

// ConcurrentDoctorCount counts distinct doctors whose occupancy overlaps window.
// Doctors listed in exclude are not counted.
func ConcurrentDoctorCount(window domain.Interval, occupancy []Occupancy, exclude ...uuid.UUID) int {
	skip := make(map[uuid.UUID]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	seen := make(map[uuid.UUID]struct{})
	for _, o := range occupancy {
		if _, ok := skip[o.DoctorID]; ok {
			continue
		}
		if !o.Span.Overlaps(window) {
			continue
		}
		seen[o.DoctorID] = struct{}{}
	}
	return len(seen)
}

// RoomsExhausted reports whether a doctor joining window would exceed rooms.
// rooms <= 0 means capacity is not enforced.
func RoomsExhausted(doctorID uuid.UUID, window domain.Interval, occupancy []Occupancy, rooms int) bool {
	if rooms <= 0 {
		return false
	}
	return ConcurrentDoctorCount(window, occupancy, doctorID) >= rooms
}
