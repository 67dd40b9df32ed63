package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"clinic/backend/internal/domain"
	"clinic/backend/internal/store"
	"clinic/backend/migrations"
)

// openTestStore migrates a fresh schema on a single pooled connection so every
// query sees the same search_path.
func openTestStore(t *testing.T) (*Store, *bun.DB) {
	t.Helper()
	databaseURL := strings.TrimSpace(os.Getenv("CLINIC_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("CLINIC_TEST_DATABASE_URL not set")
	}

	db, err := Open(databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}

	schema := "clinic_test_" + randomHex(t, 8)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
		_ = Close(db)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, err := db.NewRaw("SET search_path TO " + schema + ", public").Exec(ctx); err != nil {
		t.Fatalf("set search_path: %v", err)
	}
	if err := migrations.Up(ctx, db, nil); err != nil {
		t.Fatalf("migrations.Up: %v", err)
	}
	return New(db), db
}

func randomHex(t *testing.T, n int) string {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return hex.EncodeToString(b)
}

func seedDoctor(t *testing.T, s *Store, name string) domain.Doctor {
	t.Helper()
	d, err := s.CreateDoctor(context.Background(), domain.Doctor{
		Name:                   name,
		Honorific:              "sensei",
		MinDurationMinutes:     15,
		DefaultDurationMinutes: 30,
		MaxDurationMinutes:     60,
	})
	if err != nil {
		t.Fatalf("CreateDoctor error: %v", err)
	}
	return d
}

func book(s *Store, r domain.Reservation) (domain.Reservation, error) {
	var out domain.Reservation
	err := s.InBookingTransaction(context.Background(), "booking:"+r.StartTime.Format(domain.DateLayout), func(ctx context.Context, tx store.BookingTx) error {
		var err error
		out, err = tx.CreateReservation(ctx, r)
		return err
	})
	return out, err
}

func TestPostgresIntegration_ReservationOverlapAndIdempotency(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	doc := seedDoctor(t, s, "Tanaka")
	start := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	r1, err := book(s, domain.Reservation{
		ID:             uuid.MustParse("00000000-0000-0000-0000-000000000901"),
		DoctorID:       doc.ID,
		EmployeeID:     "e1",
		EmployeeNumber: "1001",
		StartTime:      start,
		EndTime:        start.Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("create error: %v", err)
	}

	if _, err := book(s, domain.Reservation{
		DoctorID:       doc.ID,
		EmployeeID:     "e2",
		EmployeeNumber: "1002",
		StartTime:      start.Add(15 * time.Minute),
		EndTime:        start.Add(45 * time.Minute),
	}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("overlap err = %v, want ErrConflict", err)
	}

	if _, err := book(s, domain.Reservation{
		DoctorID:       doc.ID,
		EmployeeID:     "e2",
		EmployeeNumber: "1002",
		StartTime:      start.Add(30 * time.Minute),
		EndTime:        start.Add(time.Hour),
	}); err != nil {
		t.Fatalf("back-to-back err = %v", err)
	}

	replay, err := book(s, r1)
	if err != nil {
		t.Fatalf("replay error: %v", err)
	}
	if replay.ID != r1.ID {
		t.Fatalf("replay id = %s, want %s", replay.ID, r1.ID)
	}

	changed := r1
	changed.EndTime = start.Add(20 * time.Minute)
	if _, err := book(s, changed); !errors.Is(err, store.ErrIdempotencyConflict) {
		t.Fatalf("err = %v, want ErrIdempotencyConflict", err)
	}

	rows, err := s.List(ctx, store.ReservationFilter{DoctorID: &doc.ID})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}

	if err := s.DeleteDoctor(ctx, doc.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("DeleteDoctor err = %v, want ErrConflict", err)
	}
}

func TestPostgresIntegration_SchedulesAndSettings(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	doc := seedDoctor(t, s, "Sato")
	date := domain.MustParseDate("2026-02-10")

	first, err := s.ReplaceSchedule(ctx, domain.ScheduleEntry{DoctorID: doc.ID, Date: date, Periods: []domain.TimeWindow{domain.MustWindow("09:00", "12:00")}})
	if err != nil {
		t.Fatalf("ReplaceSchedule error: %v", err)
	}
	second, err := s.ReplaceSchedule(ctx, domain.ScheduleEntry{DoctorID: doc.ID, Date: date, Periods: []domain.TimeWindow{domain.MustWindow("13:00", "17:00")}})
	if err != nil {
		t.Fatalf("ReplaceSchedule error: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("replace created a second entry")
	}

	periods, err := s.SchedulePeriods(ctx, doc.ID, date)
	if err != nil {
		t.Fatalf("SchedulePeriods error: %v", err)
	}
	if len(periods) != 1 || periods[0] != domain.MustWindow("13:00", "17:00") {
		t.Fatalf("periods = %v", periods)
	}

	if _, err := s.ReplaceSchedule(ctx, domain.ScheduleEntry{DoctorID: uuid.New(), Date: date}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown doctor err = %v, want ErrNotFound", err)
	}

	cur, err := s.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings error: %v", err)
	}
	cur.NumberOfRooms = 3
	next, err := s.UpdateSettings(ctx, cur, cur.Version)
	if err != nil {
		t.Fatalf("UpdateSettings error: %v", err)
	}
	if next.Version != cur.Version+1 || next.NumberOfRooms != 3 {
		t.Fatalf("next = %+v", next)
	}
	if _, err := s.UpdateSettings(ctx, cur, cur.Version); !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("stale update err = %v, want ErrVersionConflict", err)
	}
}

func TestPostgresIntegration_SendOnce(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	doc := seedDoctor(t, s, "Suzuki")
	start := time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC)

	r, err := book(s, domain.Reservation{DoctorID: doc.ID, EmployeeID: "e1", EmployeeNumber: "1001", StartTime: start, EndTime: start.Add(30 * time.Minute)})
	if err != nil {
		t.Fatalf("book error: %v", err)
	}
	p, err := s.CreatePolicy(ctx, domain.ReminderPolicy{DaysBefore: 1, SendHour: 9, Active: true})
	if err != nil {
		t.Fatalf("CreatePolicy error: %v", err)
	}

	boom := errors.New("smtp down")
	if sent, err := s.SendOnce(ctx, r.ID, p.ID, func(ctx context.Context) error { return boom }); !errors.Is(err, boom) || sent {
		t.Fatalf("sent=%v err=%v, want failure", sent, err)
	}

	dayStart := time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)
	unsent, err := s.ListUnsent(ctx, p.ID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("ListUnsent error: %v", err)
	}
	if len(unsent) != 1 || unsent[0].DoctorName != "Suzuki sensei" {
		t.Fatalf("unsent = %+v", unsent)
	}

	var calls atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.SendOnce(ctx, r.ID, p.ID, func(ctx context.Context) error {
				calls.Add(1)
				return nil
			}); err != nil {
				t.Errorf("SendOnce error: %v", err)
			}
		}()
	}
	wg.Wait()
	if calls.Load() != 1 {
		t.Fatalf("send calls = %d, want 1", calls.Load())
	}

	unsent, err = s.ListUnsent(ctx, p.ID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("ListUnsent error: %v", err)
	}
	if len(unsent) != 0 {
		t.Fatalf("unsent after send = %+v", unsent)
	}

	gone := uuid.New()
	sent, err := s.SendOnce(ctx, gone, p.ID, func(ctx context.Context) error { return nil })
	if !errors.Is(err, store.ErrNotFound) || sent {
		t.Fatalf("missing reservation: sent=%v err=%v, want ErrNotFound", sent, err)
	}
}
