package scheduling

import (
	"errors"
	"testing"
	"time"

	"clinic/backend/internal/domain"
)

func clocks(ts []time.Time) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Format("15:04"))
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGenerateCandidates_DurationMustFitPeriod(t *testing.T) {
	snap := Snapshot{Periods: []domain.TimeWindow{domain.MustWindow("09:00", "10:00")}}
	got, err := GenerateCandidates(SlotQuery{DoctorID: doctorA, Date: day, DurationMinutes: 30, StepMinutes: 15}, snap)
	if err != nil {
		t.Fatalf("GenerateCandidates error: %v", err)
	}
	want := []string{"09:00", "09:15", "09:30"}
	if !equalStrings(clocks(got), want) {
		t.Fatalf("slots = %v, want %v", clocks(got), want)
	}
}

func TestGenerateCandidates_DefaultStep(t *testing.T) {
	snap := Snapshot{Periods: []domain.TimeWindow{domain.MustWindow("09:00", "09:20")}}
	got, err := GenerateCandidates(SlotQuery{DoctorID: doctorA, Date: day, DurationMinutes: 10}, snap)
	if err != nil {
		t.Fatalf("GenerateCandidates error: %v", err)
	}
	want := []string{"09:00", "09:05", "09:10"}
	if !equalStrings(clocks(got), want) {
		t.Fatalf("slots = %v, want %v", clocks(got), want)
	}
}

func TestGenerateCandidates_SkipsBookedAndFullSlots(t *testing.T) {
	snap := Snapshot{
		Periods: []domain.TimeWindow{
			domain.MustWindow("09:00", "10:00"),
			domain.MustWindow("13:00", "14:00"),
		},
		Reservations: []domain.Reservation{
			reservation(1, doctorA, "09:15", "09:45"),
			reservation(2, doctorB, "13:00", "13:30"),
		},
		Rooms: 1,
	}
	got, err := GenerateCandidates(SlotQuery{DoctorID: doctorA, Date: day, DurationMinutes: 15, StepMinutes: 15}, snap)
	if err != nil {
		t.Fatalf("GenerateCandidates error: %v", err)
	}
	want := []string{"09:00", "09:45", "13:30", "13:45"}
	if !equalStrings(clocks(got), want) {
		t.Fatalf("slots = %v, want %v", clocks(got), want)
	}
}

func TestGenerateCandidates_EverySlotPassesCheck(t *testing.T) {
	snap := Snapshot{
		Periods:      []domain.TimeWindow{domain.MustWindow("08:00", "12:00")},
		Reservations: []domain.Reservation{reservation(1, doctorA, "09:10", "09:40"), reservation(2, doctorB, "11:00", "11:20")},
		Rooms:        1,
	}
	got, err := GenerateCandidates(SlotQuery{DoctorID: doctorA, Date: day, DurationMinutes: 20}, snap)
	if err != nil {
		t.Fatalf("GenerateCandidates error: %v", err)
	}
	if len(got) == 0 {
		t.Fatalf("expected slots")
	}
	for _, s := range got {
		c := Candidate{DoctorID: doctorA, StartTime: s, EndTime: s.Add(20 * time.Minute)}
		if err := Check(c, snap, CheckOptions{}); err != nil {
			t.Fatalf("slot %s fails Check: %v", s.Format("15:04"), err)
		}
	}
}

func TestGenerateCandidates_NoPeriods(t *testing.T) {
	got, err := GenerateCandidates(SlotQuery{DoctorID: doctorA, Date: day, DurationMinutes: 15}, Snapshot{})
	if err != nil {
		t.Fatalf("GenerateCandidates error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("slots = %v, want none", clocks(got))
	}
}

func TestGenerateCandidates_RejectsNonPositiveDuration(t *testing.T) {
	_, err := GenerateCandidates(SlotQuery{DoctorID: doctorA, Date: day}, Snapshot{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestGenerateCandidates_AgreesWithCheckAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}
	cases := []struct {
		name   string
		date   string
		period domain.TimeWindow
		first  string
	}{
		{"spring forward morning", "2026-03-08", domain.MustWindow("10:00", "12:00"), "10:00"},
		{"spring forward skipped hour", "2026-03-08", domain.MustWindow("01:00", "04:00"), "01:00"},
		{"fall back afternoon", "2026-11-01", domain.MustWindow("13:00", "15:00"), "13:00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := Snapshot{Periods: []domain.TimeWindow{tc.period}, Location: ny}
			got, err := GenerateCandidates(SlotQuery{
				DoctorID:        doctorA,
				Date:            domain.MustParseDate(tc.date),
				DurationMinutes: 30,
				StepMinutes:     15,
			}, snap)
			if err != nil {
				t.Fatalf("GenerateCandidates error: %v", err)
			}
			if len(got) == 0 {
				t.Fatal("no slots generated")
			}
			if first := got[0].In(ny).Format("15:04"); first != tc.first {
				t.Fatalf("first slot = %s, want %s", first, tc.first)
			}
			seen := make(map[time.Time]bool, len(got))
			for _, start := range got {
				if seen[start] {
					t.Fatalf("slot %s offered twice", start.In(ny).Format(time.RFC3339))
				}
				seen[start] = true
				c := Candidate{DoctorID: doctorA, StartTime: start, EndTime: start.Add(30 * time.Minute)}
				if err := Check(c, snap, CheckOptions{}); err != nil {
					t.Fatalf("offered slot %s rejected: %v", start.In(ny).Format(time.RFC3339), err)
				}
			}
		})
	}
}
