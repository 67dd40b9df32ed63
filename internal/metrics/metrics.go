// Package metrics holds the Prometheus collectors for booking decisions and
// reminder dispatch. A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"clinic/backend/internal/domain"
)

const namespace = "clinic"

// Booking outcomes.
const (
	OutcomeAccepted         = "accepted"
	OutcomeEmployeeNotFound = "employee_not_found"
	OutcomeDoubleBooked     = "double_booked"
	OutcomeOutsideSchedule  = "outside_schedule"
	OutcomeRoomCapacity     = "room_capacity_exceeded"
	OutcomeInvalidInput     = "invalid_input"
	OutcomeError            = "error"
)

// Reminder dispatch results.
const (
	ResultSent            = "sent"
	ResultFailed          = "failed"
	ResultSkipped         = "skipped"
	ResultTemplateMissing = "template_missing"
)

type Metrics struct {
	bookingDecisions *prometheus.CounterVec
	reminderDispatch *prometheus.CounterVec
	tickDuration     prometheus.Histogram
}

// MustNew registers the collectors on reg and panics on a registration error.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		bookingDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "booking_decisions_total",
				Help:      "Booking and reschedule decisions by outcome.",
			},
			[]string{"outcome"},
		),
		reminderDispatch: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_dispatch_total",
				Help:      "Reminder dispatch attempts by result.",
			},
			[]string{"result"},
		),
		tickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reminder_tick_duration_seconds",
				Help:      "Wall time of one reminder scheduler tick.",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
	reg.MustRegister(m.bookingDecisions, m.reminderDispatch, m.tickDuration)
	return m
}

// ObserveBooking records the outcome for err, nil meaning accepted.
func (m *Metrics) ObserveBooking(err error) {
	if m == nil {
		return
	}
	m.bookingDecisions.WithLabelValues(BookingOutcome(err)).Inc()
}

func (m *Metrics) ObserveReminder(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reminderDispatch.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
}

func BookingOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeAccepted
	case errors.Is(err, domain.ErrEmployeeNotFound):
		return OutcomeEmployeeNotFound
	case errors.Is(err, domain.ErrDoubleBooked):
		return OutcomeDoubleBooked
	case errors.Is(err, domain.ErrOutsideSchedule):
		return OutcomeOutsideSchedule
	case errors.Is(err, domain.ErrRoomCapacityExceeded):
		return OutcomeRoomCapacity
	case errors.Is(err, domain.ErrInvalidInput):
		return OutcomeInvalidInput
	default:
		return OutcomeError
	}
}
