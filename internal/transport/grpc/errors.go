package grpc

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"clinic/backend/internal/domain"
	"clinic/backend/internal/store"
)

const errorDomain = "clinic.v1"

const (
	ReasonEmployeeNotFound     = "EMPLOYEE_NOT_FOUND"
	ReasonDoubleBooked         = "DOUBLE_BOOKED"
	ReasonOutsideSchedule      = "OUTSIDE_SCHEDULE"
	ReasonRoomCapacityExceeded = "ROOM_CAPACITY_EXCEEDED"
	ReasonInvalidInput         = "INVALID_INPUT"
	ReasonNotFound             = "NOT_FOUND"
	ReasonIdempotencyConflict  = "IDEMPOTENCY_CONFLICT"
	ReasonVersionConflict      = "VERSION_CONFLICT"
	ReasonConflict             = "CONFLICT"
)

type errorMapping struct {
	target error
	code   codes.Code
	reason string
	msg    string
}

// Order matters: a ValidationError is matched by ErrInvalidInput and its own
// message is returned instead of msg.
var errorMappings = []errorMapping{
	{domain.ErrEmployeeNotFound, codes.NotFound, ReasonEmployeeNotFound, "No employee with that number was found in the directory."},
	{domain.ErrDoubleBooked, codes.FailedPrecondition, ReasonDoubleBooked, "The doctor already has a reservation during that time. Pick a different slot."},
	{domain.ErrOutsideSchedule, codes.FailedPrecondition, ReasonOutsideSchedule, "That time is outside the doctor's schedule for the day."},
	{domain.ErrRoomCapacityExceeded, codes.FailedPrecondition, ReasonRoomCapacityExceeded, "Every examination room is taken during that time. Pick a different slot."},
	{domain.ErrInvalidInput, codes.InvalidArgument, ReasonInvalidInput, ""},
	{store.ErrIdempotencyConflict, codes.FailedPrecondition, ReasonIdempotencyConflict, "This request key was already used for a different reservation. Try again."},
	{store.ErrVersionConflict, codes.Aborted, ReasonVersionConflict, "Settings were changed by someone else. Reload and try again."},
	{store.ErrNotFound, codes.NotFound, ReasonNotFound, "not found"},
	{store.ErrConflict, codes.FailedPrecondition, ReasonConflict, "The record is still in use."},
}

// toStatus converts a service error into a status carrying an ErrorInfo
// reason. Expected rejections log at Info, bad input at Warn, and anything
// unrecognised at Error as an internal error.
func toStatus(ctx context.Context, log *slog.Logger, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		log.WarnContext(ctx, "request deadline exceeded")
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	}

	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		msg := m.msg
		if m.code == codes.InvalidArgument {
			msg = err.Error()
			log.WarnContext(ctx, "invalid request", slog.String("error", msg))
		} else {
			log.InfoContext(ctx, "request rejected", slog.String("reason", m.reason))
		}
		return withReason(m.code, msg, m.reason)
	}

	log.ErrorContext(ctx, "request failed", slog.String("error", err.Error()))
	return status.Error(codes.Internal, "internal error")
}

func withReason(code codes.Code, msg, reason string) error {
	st := status.New(code, msg)
	detailed, err := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: errorDomain})
	if err != nil {
		return st.Err()
	}
	return detailed.Err()
}

// Reason extracts the ErrorInfo reason from a status error, or "".
func Reason(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return ""
}
