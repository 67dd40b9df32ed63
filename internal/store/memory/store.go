// Package memory keeps all clinic state in process. It backs
// storage.driver=memory and the service tests, and mirrors the constraints the
// Postgres schema enforces: no overlapping reservations per doctor, one
// schedule entry per doctor and date, and one send record per reminder pair.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"clinic/backend/internal/domain"
	"clinic/backend/internal/store"
)

type sendKey struct {
	reservation uuid.UUID
	policy      uuid.UUID
}

type Store struct {
	bookingMu sync.Mutex

	mu           sync.RWMutex
	settings     domain.Settings
	doctors      map[uuid.UUID]domain.Doctor
	nurses       map[uuid.UUID]domain.Nurse
	schedules    map[uuid.UUID]domain.ScheduleEntry
	reservations map[uuid.UUID]domain.Reservation
	policies     map[uuid.UUID]domain.ReminderPolicy
	templates    map[uuid.UUID]domain.EmailTemplate
	sends        map[sendKey]domain.ReminderSendRecord
	inFlight     map[sendKey]struct{}

	now func() time.Time
}

func New() *Store {
	return &Store{
		settings:     domain.DefaultSettings(),
		doctors:      make(map[uuid.UUID]domain.Doctor),
		nurses:       make(map[uuid.UUID]domain.Nurse),
		schedules:    make(map[uuid.UUID]domain.ScheduleEntry),
		reservations: make(map[uuid.UUID]domain.Reservation),
		policies:     make(map[uuid.UUID]domain.ReminderPolicy),
		templates:    make(map[uuid.UUID]domain.EmailTemplate),
		sends:        make(map[sendKey]domain.ReminderSendRecord),
		inFlight:     make(map[sendKey]struct{}),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func newID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// Settings

func (s *Store) Settings(ctx context.Context) (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSettings(s.settings), nil
}

func (s *Store) UpdateSettings(ctx context.Context, in domain.Settings, expectedVersion int64) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings.Version != expectedVersion {
		return domain.Settings{}, store.ErrVersionConflict
	}
	next := cloneSettings(in)
	next.ID = s.settings.ID
	next.Version = s.settings.Version + 1
	next.UpdatedAt = s.now()
	s.settings = next
	return cloneSettings(next), nil
}

func cloneSettings(in domain.Settings) domain.Settings {
	out := in
	out.DisplayDaysOfWeek = append([]int16(nil), in.DisplayDaysOfWeek...)
	return out
}

// Doctors and nurses

func (s *Store) CreateDoctor(ctx context.Context, d domain.Doctor) (domain.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = newID()
	}
	if _, ok := s.doctors[d.ID]; ok {
		return domain.Doctor{}, store.ErrConflict
	}
	now := s.now()
	d.CreatedAt, d.UpdatedAt = now, now
	s.doctors[d.ID] = d
	return d, nil
}

func (s *Store) UpdateDoctor(ctx context.Context, d domain.Doctor) (domain.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.doctors[d.ID]
	if !ok {
		return domain.Doctor{}, store.ErrNotFound
	}
	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = s.now()
	s.doctors[d.ID] = d
	return d, nil
}

func (s *Store) GetDoctor(ctx context.Context, id uuid.UUID) (domain.Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.doctors[id]
	if !ok {
		return domain.Doctor{}, store.ErrNotFound
	}
	return d, nil
}

func (s *Store) ListDoctors(ctx context.Context) ([]domain.Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Doctor, 0, len(s.doctors))
	for _, d := range s.doctors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doctors[id]; !ok {
		return store.ErrNotFound
	}
	for _, r := range s.reservations {
		if r.DoctorID == id {
			return store.ErrConflict
		}
	}
	delete(s.doctors, id)
	for sid, e := range s.schedules {
		if e.DoctorID == id {
			delete(s.schedules, sid)
		}
	}
	return nil
}

func (s *Store) CreateNurse(ctx context.Context, n domain.Nurse) (domain.Nurse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == uuid.Nil {
		n.ID = newID()
	}
	n.CreatedAt = s.now()
	s.nurses[n.ID] = n
	return n, nil
}

func (s *Store) GetNurse(ctx context.Context, id uuid.UUID) (domain.Nurse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nurses[id]
	if !ok {
		return domain.Nurse{}, store.ErrNotFound
	}
	return n, nil
}

func (s *Store) ListNurses(ctx context.Context) ([]domain.Nurse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Nurse, 0, len(s.nurses))
	for _, n := range s.nurses {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteNurse(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nurses[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.nurses, id)
	for rid, r := range s.reservations {
		if r.NurseID != nil && *r.NurseID == id {
			r.NurseID = nil
			s.reservations[rid] = r
		}
	}
	return nil
}

// Schedules

func (s *Store) ReplaceSchedule(ctx context.Context, entry domain.ScheduleEntry) (domain.ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doctors[entry.DoctorID]; !ok {
		return domain.ScheduleEntry{}, store.ErrNotFound
	}
	now := s.now()
	entry.Periods = append([]domain.TimeWindow(nil), entry.Periods...)
	for id, e := range s.schedules {
		if e.DoctorID == entry.DoctorID && e.Date.Equal(entry.Date) {
			entry.ID = id
			entry.CreatedAt = e.CreatedAt
			entry.UpdatedAt = now
			s.schedules[id] = entry
			return entry, nil
		}
	}
	if entry.ID == uuid.Nil {
		entry.ID = newID()
	}
	entry.CreatedAt, entry.UpdatedAt = now, now
	s.schedules[entry.ID] = entry
	return entry, nil
}

func (s *Store) GetSchedule(ctx context.Context, doctorID uuid.UUID, date time.Time) (domain.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.schedules {
		if e.DoctorID == doctorID && e.Date.Equal(date) {
			return e, nil
		}
	}
	return domain.ScheduleEntry{}, store.ErrNotFound
}

func (s *Store) ListSchedules(ctx context.Context, doctorID *uuid.UUID, from, to time.Time) ([]domain.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ScheduleEntry
	for _, e := range s.schedules {
		if doctorID != nil && e.DoctorID != *doctorID {
			continue
		}
		if e.Date.Before(from) || e.Date.After(to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].DoctorID.String() < out[j].DoctorID.String()
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

func (s *Store) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.schedules, id)
	return nil
}

func (s *Store) SchedulePeriods(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]domain.TimeWindow, error) {
	e, err := s.GetSchedule(ctx, doctorID, date)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return append([]domain.TimeWindow(nil), e.Periods...), nil
}

// Reservations

func (s *Store) ListReservations(ctx context.Context, windowStart, windowEnd time.Time) ([]domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(store.ReservationFilter{WindowStart: &windowStart, WindowEnd: &windowEnd}, nil), nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return domain.Reservation{}, store.ErrNotFound
	}
	return r, nil
}

func (s *Store) List(ctx context.Context, filter store.ReservationFilter) ([]domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(filter, nil), nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reservations[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.reservations, id)
	for k := range s.sends {
		if k.reservation == id {
			delete(s.sends, k)
		}
	}
	return nil
}

func (s *Store) listLocked(filter store.ReservationFilter, staged map[uuid.UUID]domain.Reservation) []domain.Reservation {
	var out []domain.Reservation
	match := func(r domain.Reservation) bool {
		if filter.DoctorID != nil && r.DoctorID != *filter.DoctorID {
			return false
		}
		if filter.EmployeeID != "" && r.EmployeeID != filter.EmployeeID {
			return false
		}
		if filter.WindowEnd != nil && !r.StartTime.Before(*filter.WindowEnd) {
			return false
		}
		if filter.WindowStart != nil && !r.EndTime.After(*filter.WindowStart) {
			return false
		}
		return true
	}
	for id, r := range s.reservations {
		if _, ok := staged[id]; ok {
			continue
		}
		if match(r) {
			out = append(out, r)
		}
	}
	for _, r := range staged {
		if match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (s *Store) InBookingTransaction(ctx context.Context, lockKey string, fn func(ctx context.Context, tx store.BookingTx) error) error {
	s.bookingMu.Lock()
	defer s.bookingMu.Unlock()

	tx := &bookingTx{s: s, staged: make(map[uuid.UUID]domain.Reservation)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range tx.staged {
		s.reservations[id] = r
	}
	return nil
}

type bookingTx struct {
	s      *Store
	staged map[uuid.UUID]domain.Reservation
}

func (t *bookingTx) Settings(ctx context.Context) (domain.Settings, error) {
	return t.s.Settings(ctx)
}

func (t *bookingTx) SchedulePeriods(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]domain.TimeWindow, error) {
	return t.s.SchedulePeriods(ctx, doctorID, date)
}

func (t *bookingTx) GetDoctor(ctx context.Context, id uuid.UUID) (domain.Doctor, error) {
	return t.s.GetDoctor(ctx, id)
}

func (t *bookingTx) ListReservations(ctx context.Context, windowStart, windowEnd time.Time) ([]domain.Reservation, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.listLocked(store.ReservationFilter{WindowStart: &windowStart, WindowEnd: &windowEnd}, t.staged), nil
}

func (t *bookingTx) GetReservation(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	if r, ok := t.staged[id]; ok {
		return r, nil
	}
	return t.s.Get(ctx, id)
}

func (t *bookingTx) CreateReservation(ctx context.Context, r domain.Reservation) (domain.Reservation, error) {
	if r.ID == uuid.Nil {
		r.ID = newID()
	} else if existing, err := t.GetReservation(ctx, r.ID); err == nil {
		if !sameBooking(existing, r) {
			return domain.Reservation{}, store.ErrIdempotencyConflict
		}
		return existing, nil
	}
	if t.overlapsLocked(r) {
		return domain.Reservation{}, store.ErrConflict
	}
	now := t.s.now()
	r.CreatedAt, r.UpdatedAt = now, now
	t.staged[r.ID] = r
	return r, nil
}

func (t *bookingTx) UpdateReservationTimes(ctx context.Context, id uuid.UUID, start, end time.Time) (domain.Reservation, error) {
	r, err := t.GetReservation(ctx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	r.StartTime, r.EndTime = start, end
	if t.overlapsLocked(r) {
		return domain.Reservation{}, store.ErrConflict
	}
	r.UpdatedAt = t.s.now()
	t.staged[id] = r
	return r, nil
}

// overlapsLocked emulates the reservations_no_overlap exclusion constraint.
func (t *bookingTx) overlapsLocked(r domain.Reservation) bool {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	doctor := r.DoctorID
	for _, other := range t.s.listLocked(store.ReservationFilter{DoctorID: &doctor}, t.staged) {
		if other.ID == r.ID {
			continue
		}
		if other.Interval().Overlaps(r.Interval()) {
			return true
		}
	}
	return false
}

func sameBooking(a, b domain.Reservation) bool {
	return a.DoctorID == b.DoctorID &&
		a.EmployeeID == b.EmployeeID &&
		a.StartTime.Equal(b.StartTime) &&
		a.EndTime.Equal(b.EndTime)
}

// Reminders

func (s *Store) CreatePolicy(ctx context.Context, p domain.ReminderPolicy) (domain.ReminderPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = newID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.policies[p.ID] = p
	return p, nil
}

func (s *Store) ListPolicies(ctx context.Context, activeOnly bool) ([]domain.ReminderPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ReminderPolicy, 0, len(s.policies))
	for _, p := range s.policies {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) SetPolicyActive(ctx context.Context, id uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Active = active
	s.policies[id] = p
	return nil
}

func (s *Store) DeletePolicy(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.policies, id)
	for k := range s.sends {
		if k.policy == id {
			delete(s.sends, k)
		}
	}
	return nil
}

func (s *Store) ListUnsent(ctx context.Context, policyID uuid.UUID, dayStart, dayEnd time.Time) ([]domain.ReminderCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ReminderCandidate
	for _, r := range s.reservations {
		if r.StartTime.Before(dayStart) || !r.StartTime.Before(dayEnd) {
			continue
		}
		if _, sent := s.sends[sendKey{reservation: r.ID, policy: policyID}]; sent {
			continue
		}
		c := domain.ReminderCandidate{Reservation: r}
		if d, ok := s.doctors[r.DoctorID]; ok {
			c.DoctorName = d.DisplayName()
		}
		if r.NurseID != nil {
			if n, ok := s.nurses[*r.NurseID]; ok {
				c.NurseName = n.Name
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Reservation.StartTime.Before(out[j].Reservation.StartTime)
	})
	return out, nil
}

func (s *Store) SendOnce(ctx context.Context, reservationID, policyID uuid.UUID, send func(ctx context.Context) error) (bool, error) {
	key := sendKey{reservation: reservationID, policy: policyID}

	s.mu.Lock()
	if _, sent := s.sends[key]; sent {
		s.mu.Unlock()
		return false, nil
	}
	if _, busy := s.inFlight[key]; busy {
		s.mu.Unlock()
		return false, nil
	}
	s.inFlight[key] = struct{}{}
	s.mu.Unlock()

	err := send(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)
	if err != nil {
		return false, err
	}
	// The reservation or policy may have been deleted while send ran.
	if _, ok := s.reservations[reservationID]; !ok {
		return false, store.ErrNotFound
	}
	if _, ok := s.policies[policyID]; !ok {
		return false, store.ErrNotFound
	}
	s.sends[key] = domain.ReminderSendRecord{ReservationID: reservationID, PolicyID: policyID, SentAt: s.now()}
	return true, nil
}

func (s *Store) ListSendRecords(ctx context.Context, reservationID uuid.UUID) ([]domain.ReminderSendRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ReminderSendRecord
	for k, rec := range s.sends {
		if k.reservation == reservationID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PolicyID.String() < out[j].PolicyID.String() })
	return out, nil
}

// Templates

func (s *Store) CreateTemplate(ctx context.Context, t domain.EmailTemplate) (domain.EmailTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.templates {
		if strings.EqualFold(existing.Name, t.Name) {
			return domain.EmailTemplate{}, store.ErrConflict
		}
	}
	if t.ID == uuid.Nil {
		t.ID = newID()
	}
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	s.templates[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTemplate(ctx context.Context, t domain.EmailTemplate) (domain.EmailTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.templates[t.ID]
	if !ok {
		return domain.EmailTemplate{}, store.ErrNotFound
	}
	for id, other := range s.templates {
		if id != t.ID && strings.EqualFold(other.Name, t.Name) {
			return domain.EmailTemplate{}, store.ErrConflict
		}
	}
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = s.now()
	s.templates[t.ID] = t
	return t, nil
}

func (s *Store) GetTemplate(ctx context.Context, id uuid.UUID) (domain.EmailTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return domain.EmailTemplate{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) GetTemplateByName(ctx context.Context, name string) (domain.EmailTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.templates {
		if strings.EqualFold(t.Name, name) {
			return t, nil
		}
	}
	return domain.EmailTemplate{}, store.ErrNotFound
}

func (s *Store) ListTemplates(ctx context.Context) ([]domain.EmailTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.EmailTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.templates, id)
	for pid, p := range s.policies {
		if p.TemplateID != nil && *p.TemplateID == id {
			p.TemplateID = nil
			s.policies[pid] = p
		}
	}
	return nil
}

var (
	_ store.ReservationRepository = (*Store)(nil)
	_ store.DoctorRepository      = (*Store)(nil)
	_ store.NurseRepository       = (*Store)(nil)
	_ store.SettingsRepository    = (*Store)(nil)
	_ store.ScheduleRepository    = (*Store)(nil)
	_ store.ReminderRepository    = (*Store)(nil)
	_ store.TemplateRepository    = (*Store)(nil)
)
