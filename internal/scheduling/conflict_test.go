package scheduling

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"

	"clinic/backend/internal/domain"
)

var (
	doctorA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	doctorB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	doctorC = uuid.MustParse("00000000-0000-0000-0000-00000000000c")
	day     = time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
)

func at(hhmm string) time.Time {
	return domain.MustParseClock(hhmm).On(day, time.UTC)
}

func reservation(id int, doctor uuid.UUID, start, end string) domain.Reservation {
	return domain.Reservation{
		ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte{byte(id)}),
		DoctorID:  doctor,
		StartTime: at(start),
		EndTime:   at(end),
	}
}

func candidate(doctor uuid.UUID, start, end string) Candidate {
	return Candidate{DoctorID: doctor, StartTime: at(start), EndTime: at(end)}
}

func fullDay() []domain.TimeWindow {
	return []domain.TimeWindow{domain.MustWindow("00:00", "24:00")}
}

func TestCheck_BackToBackIsLegal(t *testing.T) {
	snap := Snapshot{
		Periods:      []domain.TimeWindow{domain.MustWindow("09:00", "17:00")},
		Reservations: []domain.Reservation{reservation(1, doctorA, "09:00", "09:30")},
	}
	if err := Check(candidate(doctorA, "09:30", "10:00"), snap, CheckOptions{}); err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if err := Check(candidate(doctorA, "08:30", "09:00"), Snapshot{Periods: fullDay(), Reservations: snap.Reservations}, CheckOptions{}); err != nil {
		t.Fatalf("Check error: %v", err)
	}
}

func TestCheck_DoubleBooked(t *testing.T) {
	snap := Snapshot{
		Periods:      []domain.TimeWindow{domain.MustWindow("09:00", "17:00")},
		Reservations: []domain.Reservation{reservation(1, doctorA, "09:00", "09:30")},
	}
	err := Check(candidate(doctorA, "09:15", "09:45"), snap, CheckOptions{})
	if !errors.Is(err, domain.ErrDoubleBooked) {
		t.Fatalf("err = %v, want ErrDoubleBooked", err)
	}

	// Another doctor's reservation is not a double booking.
	if err := Check(candidate(doctorB, "09:15", "09:45"), Snapshot{Periods: snap.Periods, Reservations: snap.Reservations}, CheckOptions{}); err != nil {
		t.Fatalf("Check error: %v", err)
	}
}

func TestCheck_DoubleBookedWinsOverOutsideSchedule(t *testing.T) {
	snap := Snapshot{
		Periods:      []domain.TimeWindow{domain.MustWindow("09:00", "10:00")},
		Reservations: []domain.Reservation{reservation(1, doctorA, "09:30", "10:30")},
	}
	err := Check(candidate(doctorA, "09:45", "10:15"), snap, CheckOptions{})
	if !errors.Is(err, domain.ErrDoubleBooked) {
		t.Fatalf("err = %v, want ErrDoubleBooked", err)
	}
}

func TestCheck_ScheduleBoundaries(t *testing.T) {
	snap := Snapshot{Periods: []domain.TimeWindow{domain.MustWindow("09:00", "17:00")}}
	cases := []struct {
		start, end string
		want       error
	}{
		{"09:00", "09:15", nil},
		{"16:45", "17:00", nil},
		{"08:45", "09:15", domain.ErrOutsideSchedule},
		{"16:45", "17:15", domain.ErrOutsideSchedule},
	}
	for _, tc := range cases {
		err := Check(candidate(doctorA, tc.start, tc.end), snap, CheckOptions{})
		if !errors.Is(err, tc.want) {
			t.Fatalf("[%s,%s) err = %v, want %v", tc.start, tc.end, err, tc.want)
		}
	}
}

func TestCheck_NoPeriodsIsOutsideSchedule(t *testing.T) {
	err := Check(candidate(doctorA, "09:00", "09:30"), Snapshot{}, CheckOptions{})
	if !errors.Is(err, domain.ErrOutsideSchedule) {
		t.Fatalf("err = %v, want ErrOutsideSchedule", err)
	}
}

func TestCheck_MustFitOnePeriod(t *testing.T) {
	snap := Snapshot{Periods: []domain.TimeWindow{
		domain.MustWindow("09:00", "12:00"),
		domain.MustWindow("12:00", "13:00"),
	}}
	// Spanning two touching periods is not contained by either.
	err := Check(candidate(doctorA, "11:30", "12:30"), snap, CheckOptions{})
	if !errors.Is(err, domain.ErrOutsideSchedule) {
		t.Fatalf("err = %v, want ErrOutsideSchedule", err)
	}
}

func TestCheck_RoomCapacity(t *testing.T) {
	existing := []domain.Reservation{reservation(1, doctorA, "10:00", "10:30")}

	t.Run("one room blocks a second doctor", func(t *testing.T) {
		err := Check(candidate(doctorB, "10:15", "10:45"), Snapshot{Periods: fullDay(), Reservations: existing, Rooms: 1}, CheckOptions{})
		if !errors.Is(err, domain.ErrRoomCapacityExceeded) {
			t.Fatalf("err = %v, want ErrRoomCapacityExceeded", err)
		}
	})

	t.Run("non overlapping window is free", func(t *testing.T) {
		err := Check(candidate(doctorB, "10:30", "11:00"), Snapshot{Periods: fullDay(), Reservations: existing, Rooms: 1}, CheckOptions{})
		if err != nil {
			t.Fatalf("Check error: %v", err)
		}
	})

	t.Run("two rooms allow a second doctor but not a third", func(t *testing.T) {
		snap := Snapshot{Periods: fullDay(), Reservations: existing, Rooms: 2}
		if err := Check(candidate(doctorB, "10:00", "10:30"), snap, CheckOptions{}); err != nil {
			t.Fatalf("Check error: %v", err)
		}
		snap.Reservations = append(snap.Reservations, reservation(2, doctorB, "10:00", "10:30"))
		err := Check(candidate(doctorC, "10:10", "10:20"), snap, CheckOptions{})
		if !errors.Is(err, domain.ErrRoomCapacityExceeded) {
			t.Fatalf("err = %v, want ErrRoomCapacityExceeded", err)
		}
	})

	t.Run("zero rooms disables the check", func(t *testing.T) {
		err := Check(candidate(doctorB, "10:00", "10:30"), Snapshot{Periods: fullDay(), Reservations: existing}, CheckOptions{})
		if err != nil {
			t.Fatalf("Check error: %v", err)
		}
	})
}

func TestCheck_IgnoreExcludesRescheduledReservation(t *testing.T) {
	self := reservation(1, doctorA, "09:00", "09:30")
	snap := Snapshot{Periods: fullDay(), Reservations: []domain.Reservation{self}, Rooms: 1}

	err := Check(candidate(doctorA, "09:15", "09:45"), snap, CheckOptions{})
	if !errors.Is(err, domain.ErrDoubleBooked) {
		t.Fatalf("err = %v, want ErrDoubleBooked", err)
	}
	if err := Check(candidate(doctorA, "09:15", "09:45"), snap, CheckOptions{Ignore: self.ID}); err != nil {
		t.Fatalf("Check error: %v", err)
	}
}

func TestCheck_InvertedCandidateIsInvalid(t *testing.T) {
	err := Check(candidate(doctorA, "10:00", "09:00"), Snapshot{Periods: fullDay()}, CheckOptions{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

// Accepting a pair of reservations for one doctor must coincide with the
// half-open overlap predicate being false.
func TestCheck_AcceptanceMatchesOverlapPredicate(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5000; i++ {
		w1 := randomWindow(rng)
		w2 := randomWindow(rng)
		first := domain.Reservation{
			ID:        uuid.New(),
			DoctorID:  doctorA,
			StartTime: w1.Start.On(day, time.UTC),
			EndTime:   w1.End.On(day, time.UTC),
		}
		c := Candidate{DoctorID: doctorA, StartTime: w2.Start.On(day, time.UTC), EndTime: w2.End.On(day, time.UTC)}

		err := Check(c, Snapshot{Periods: fullDay(), Reservations: []domain.Reservation{first}}, CheckOptions{})
		accepted := err == nil
		if accepted == domain.Overlaps(w1, w2) {
			t.Fatalf("w1=%s w2=%s accepted=%v overlaps=%v err=%v", w1, w2, accepted, domain.Overlaps(w1, w2), err)
		}
		if err != nil && !errors.Is(err, domain.ErrDoubleBooked) {
			t.Fatalf("unexpected err = %v", err)
		}
	}
}

func randomWindow(rng *rand.Rand) domain.TimeWindow {
	start := rng.Intn(domain.MinutesPerDay - 1)
	end := start + 1 + rng.Intn(domain.MinutesPerDay-start)
	return domain.TimeWindow{Start: domain.ClockTime(start), End: domain.ClockTime(end)}
}
