package grpc

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"clinic/backend/internal/domain"
	"clinic/backend/internal/service/availability"
)

// args reads typed request fields out of a Struct. Missing and null fields
// read as absent; malformed ones are validation errors.
type args struct {
	fields map[string]*structpb.Value
}

func newArgs(in *structpb.Struct) args {
	if in == nil {
		return args{}
	}
	return args{fields: in.GetFields()}
}

func (a args) value(key string) (*structpb.Value, bool) {
	v, ok := a.fields[key]
	if !ok || v == nil {
		return nil, false
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, false
	}
	return v, true
}

func (a args) str(key string) (string, error) {
	v, ok := a.value(key)
	if !ok {
		return "", nil
	}
	s, isString := v.GetKind().(*structpb.Value_StringValue)
	if !isString {
		return "", domain.NewValidationError(key + " must be a string")
	}
	return strings.TrimSpace(s.StringValue), nil
}

func (a args) requiredUUID(key string) (uuid.UUID, error) {
	id, err := a.optUUID(key)
	if err != nil {
		return uuid.Nil, err
	}
	if id == nil {
		return uuid.Nil, domain.NewValidationError(key + " is required")
	}
	return *id, nil
}

func (a args) optUUID(key string) (*uuid.UUID, error) {
	s, err := a.str(key)
	if err != nil || s == "" {
		return nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, domain.NewValidationError(key + " must be a UUID")
	}
	return &id, nil
}

func (a args) requiredTime(key string) (time.Time, error) {
	t, err := a.optTime(key)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return time.Time{}, domain.NewValidationError(key + " is required")
	}
	return *t, nil
}

func (a args) optTime(key string) (*time.Time, error) {
	s, err := a.str(key)
	if err != nil || s == "" {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, domain.NewValidationError(key + " must be an RFC 3339 timestamp")
	}
	return &t, nil
}

func (a args) date(key string) (time.Time, error) {
	s, err := a.str(key)
	if err != nil {
		return time.Time{}, err
	}
	if s == "" {
		return time.Time{}, domain.NewValidationError(key + " is required")
	}
	return domain.ParseDate(s)
}

func (a args) optInt(key string) (*int, error) {
	v, ok := a.value(key)
	if !ok {
		return nil, nil
	}
	n, isNumber := v.GetKind().(*structpb.Value_NumberValue)
	if !isNumber || n.NumberValue != math.Trunc(n.NumberValue) || math.Abs(n.NumberValue) > math.MaxInt32 {
		return nil, domain.NewValidationError(key + " must be an integer")
	}
	i := int(n.NumberValue)
	return &i, nil
}

func (a args) list(key string) ([]*structpb.Value, bool, error) {
	v, ok := a.value(key)
	if !ok {
		return nil, false, nil
	}
	l, isList := v.GetKind().(*structpb.Value_ListValue)
	if !isList {
		return nil, false, domain.NewValidationError(key + " must be a list")
	}
	return l.ListValue.GetValues(), true, nil
}

func (a args) periods(key string) ([]domain.TimeWindow, error) {
	values, _, err := a.list(key)
	if err != nil {
		return nil, err
	}
	out := make([]domain.TimeWindow, 0, len(values))
	for i, v := range values {
		obj := v.GetStructValue()
		if obj == nil {
			return nil, domain.NewValidationError(fmt.Sprintf("%s[%d] must be an object", key, i))
		}
		pa := newArgs(obj)
		start, err := pa.str("startTime")
		if err != nil {
			return nil, err
		}
		end, err := pa.str("endTime")
		if err != nil {
			return nil, err
		}
		w, err := domain.ParseTimeWindow(start, end)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func (a args) days(key string) ([]int16, error) {
	values, ok, err := a.list(key)
	if err != nil || !ok {
		return nil, err
	}
	out := make([]int16, 0, len(values))
	for i, v := range values {
		n, isNumber := v.GetKind().(*structpb.Value_NumberValue)
		if !isNumber || n.NumberValue != math.Trunc(n.NumberValue) || n.NumberValue < 0 || n.NumberValue > 6 {
			return nil, domain.NewValidationError(fmt.Sprintf("%s[%d] must be a day of week between 0 and 6", key, i))
		}
		out = append(out, int16(n.NumberValue))
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func reservationFields(r domain.Reservation) map[string]any {
	var nurseID any
	if r.NurseID != nil {
		nurseID = r.NurseID.String()
	}
	return map[string]any{
		"id":             r.ID.String(),
		"doctorId":       r.DoctorID.String(),
		"employeeId":     r.EmployeeID,
		"employeeNumber": r.EmployeeNumber,
		"employeeName":   r.EmployeeName,
		"employeeEmail":  r.EmployeeEmail,
		"nurseId":        nurseID,
		"startTime":      formatTime(r.StartTime),
		"endTime":        formatTime(r.EndTime),
		"createdAt":      formatTime(r.CreatedAt),
		"updatedAt":      formatTime(r.UpdatedAt),
	}
}

func periodsFields(periods []domain.TimeWindow) []any {
	out := make([]any, 0, len(periods))
	for _, p := range periods {
		out = append(out, map[string]any{
			"startTime": p.Start.String(),
			"endTime":   p.End.String(),
		})
	}
	return out
}

func scheduleEntryFields(e domain.ScheduleEntry) map[string]any {
	return map[string]any{
		"id":          e.ID.String(),
		"doctorId":    e.DoctorID.String(),
		"date":        e.DateString(),
		"timePeriods": periodsFields(e.Periods),
		"updatedAt":   formatTime(e.UpdatedAt),
	}
}

func roomWarningFields(warnings []availability.RoomWarning) []any {
	out := make([]any, 0, len(warnings))
	for _, w := range warnings {
		others := make([]any, 0, len(w.OtherDoctors))
		for _, id := range w.OtherDoctors {
			others = append(others, id.String())
		}
		out = append(out, map[string]any{
			"startTime":    w.Period.Start.String(),
			"endTime":      w.Period.End.String(),
			"concurrent":   w.Concurrent,
			"rooms":        w.Rooms,
			"otherDoctors": others,
		})
	}
	return out
}

func settingsFields(s domain.Settings) map[string]any {
	days := make([]any, 0, len(s.DisplayDaysOfWeek))
	for _, d := range s.DisplayDaysOfWeek {
		days = append(days, int(d))
	}
	return map[string]any{
		"version":                s.Version,
		"numberOfRooms":          s.NumberOfRooms,
		"defaultDurationMinutes": s.DefaultDurationMinutes,
		"displayTimezone":        s.DisplayTimezone,
		"displayDaysOfWeek":      days,
		"updatedAt":              formatTime(s.UpdatedAt),
	}
}
