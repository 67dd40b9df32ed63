package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"clinic/backend/internal/domain"
)

func TestBookingOutcome(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, OutcomeAccepted},
		{domain.ErrEmployeeNotFound, OutcomeEmployeeNotFound},
		{fmt.Errorf("book: %w", domain.ErrDoubleBooked), OutcomeDoubleBooked},
		{domain.ErrOutsideSchedule, OutcomeOutsideSchedule},
		{domain.ErrRoomCapacityExceeded, OutcomeRoomCapacity},
		{domain.NewValidationError("bad"), OutcomeInvalidInput},
		{errors.New("db down"), OutcomeError},
	}
	for _, tc := range cases {
		if got := BookingOutcome(tc.err); got != tc.want {
			t.Fatalf("BookingOutcome(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNew(reg)

	m.ObserveBooking(nil)
	m.ObserveBooking(nil)
	m.ObserveBooking(domain.ErrRoomCapacityExceeded)
	m.ObserveReminder(ResultSent, 3)
	m.ObserveReminder(ResultFailed, 0)
	m.ObserveTick(150 * time.Millisecond)

	if got := testutil.ToFloat64(m.bookingDecisions.WithLabelValues(OutcomeAccepted)); got != 2 {
		t.Fatalf("accepted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.bookingDecisions.WithLabelValues(OutcomeRoomCapacity)); got != 1 {
		t.Fatalf("room capacity = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.reminderDispatch.WithLabelValues(ResultSent)); got != 3 {
		t.Fatalf("sent = %v, want 3", got)
	}
	if got := testutil.CollectAndCount(m.tickDuration); got != 1 {
		t.Fatalf("tick histogram series = %d, want 1", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveBooking(nil)
	m.ObserveReminder(ResultSent, 1)
	m.ObserveTick(time.Second)
}
