package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clinic/backend/internal/domain"
)

// BookingReader is the state a booking decision or slot search reads.
type BookingReader interface {
	Settings(ctx context.Context) (domain.Settings, error)
	SchedulePeriods(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]domain.TimeWindow, error)
	// ListReservations returns reservations of every doctor overlapping the window.
	ListReservations(ctx context.Context, windowStart, windowEnd time.Time) ([]domain.Reservation, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (domain.Doctor, error)
}

type BookingTx interface {
	BookingReader

	GetReservation(ctx context.Context, id uuid.UUID) (domain.Reservation, error)
	CreateReservation(ctx context.Context, r domain.Reservation) (domain.Reservation, error)
	UpdateReservationTimes(ctx context.Context, id uuid.UUID, start, end time.Time) (domain.Reservation, error)
}

type ReservationFilter struct {
	DoctorID    *uuid.UUID
	EmployeeID  string
	WindowStart *time.Time
	WindowEnd   *time.Time
}

type ReservationRepository interface {
	BookingReader

	// InBookingTransaction runs fn with writes serialized for the calendar
	// date identified by lockKey.
	InBookingTransaction(ctx context.Context, lockKey string, fn func(ctx context.Context, tx BookingTx) error) error

	Get(ctx context.Context, id uuid.UUID) (domain.Reservation, error)
	List(ctx context.Context, filter ReservationFilter) ([]domain.Reservation, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
