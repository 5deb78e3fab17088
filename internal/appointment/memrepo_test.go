package appointment

import (
	"context"
	"encoding/json"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking-platform/internal/availability"
	"github.com/hackgods/clinic-booking-platform/internal/conflict"
	"github.com/hackgods/clinic-booking-platform/internal/notification"
)

// memRepo is an in-memory Reservation Store. Transactions are serialised on
// one mutex and roll back on error. Insert and Update enforce the same
// non-overlap rule as the database exclusion constraint.
type memRepo struct {
	mu            sync.Mutex
	reservations  map[uuid.UUID]Reservation
	notifications []notification.Request
	intakes       map[uuid.UUID]json.RawMessage
	reminded      map[uuid.UUID]bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		reservations: map[uuid.UUID]Reservation{},
		intakes:      map[uuid.UUID]json.RawMessage{},
		reminded:     map[uuid.UUID]bool{},
	}
}

func (m *memRepo) put(r Reservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations[r.ID] = r
}

func (m *memRepo) get(id uuid.UUID) Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reservations[id]
}

func (m *memRepo) notificationTypes(id uuid.UUID) []notification.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notification.Type
	for _, n := range m.notifications {
		if n.ReservationID != nil && *n.ReservationID == id {
			out = append(out, n.Type)
		}
	}
	return out
}

func (m *memRepo) all() []Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedValues(m.reservations)
}

func sortedValues(in map[uuid.UUID]Reservation) []Reservation {
	out := make([]Reservation, 0, len(in))
	for _, r := range in {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out
}

func (m *memRepo) Get(_ context.Context, id uuid.UUID) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	return &r, nil
}

func (m *memRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]Reservation, error) {
	var out []Reservation
	for _, r := range m.all() {
		if r.PatientID == patientID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) ListByClinic(_ context.Context, clinicID uuid.UUID, statuses []Status, limit, offset int) ([]Reservation, error) {
	var out []Reservation
	for _, r := range m.all() {
		if r.ClinicID != clinicID {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, r.Status) {
			continue
		}
		out = append(out, r)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *memRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Reservation, error) {
	window := conflict.Range{Start: from, End: to}
	var out []Reservation
	for _, r := range m.all() {
		if r.DoctorID == doctorID && r.Range().Overlaps(window) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) ListBlocking(_ context.Context, doctorID uuid.UUID, from, to, now time.Time) ([]conflict.Range, error) {
	window := conflict.Range{Start: from, End: to}
	var out []conflict.Range
	for _, r := range m.all() {
		if r.DoctorID != doctorID || !r.Status.IsActive() {
			continue
		}
		if r.Status == StatusHold && !r.HoldExpiresAt.After(now) {
			continue
		}
		if r.ActiveRange().Overlaps(window) {
			out = append(out, r.ActiveRange())
		}
	}
	return out, nil
}

func (m *memRepo) ListConfirmedStartingBetween(_ context.Context, from, to time.Time) ([]Reservation, error) {
	var out []Reservation
	for _, r := range m.all() {
		if r.Status == StatusConfirmed && !r.StartAt.Before(from) && !r.StartAt.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reservations := maps.Clone(m.reservations)
	notifications := append([]notification.Request(nil), m.notifications...)
	intakes := maps.Clone(m.intakes)
	reminded := maps.Clone(m.reminded)

	if err := fn(ctx, &memTx{m: m}); err != nil {
		m.reservations = reservations
		m.notifications = notifications
		m.intakes = intakes
		m.reminded = reminded
		return err
	}
	return nil
}

// memTx runs with memRepo.mu held.
type memTx struct {
	m *memRepo
}

func (t *memTx) LockDoctor(context.Context, uuid.UUID) error { return nil }

func (t *memTx) ActiveOverlapping(_ context.Context, doctorID uuid.UUID, rng conflict.Range, excludeID uuid.UUID) ([]Reservation, error) {
	var out []Reservation
	for _, r := range t.m.reservations {
		if r.ID != excludeID && r.DoctorID == doctorID && r.Status.IsActive() && r.ActiveRange().Overlaps(rng) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memTx) GetForUpdate(_ context.Context, id uuid.UUID) (*Reservation, error) {
	r, ok := t.m.reservations[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	return &r, nil
}

func (t *memTx) FindByIdempotencyKey(_ context.Context, patientID, doctorID uuid.UUID, key string) (*Reservation, error) {
	for _, r := range t.m.reservations {
		if r.PatientID == patientID && r.DoctorID == doctorID && r.IdempotencyKey != nil && *r.IdempotencyKey == key {
			return &r, nil
		}
	}
	return nil, ErrReservationNotFound
}

func (t *memTx) ActiveByPatientDoctor(_ context.Context, patientID, doctorID uuid.UUID) ([]Reservation, error) {
	var out []Reservation
	for _, r := range t.m.reservations {
		if r.PatientID == patientID && r.DoctorID == doctorID && r.Status.IsActive() {
			out = append(out, r)
		}
	}
	return out, nil
}

// excluded mirrors reservations_doctor_no_overlap.
func (t *memTx) excluded(r Reservation) bool {
	if !r.Status.IsActive() {
		return false
	}
	for _, o := range t.m.reservations {
		if o.ID != r.ID && o.DoctorID == r.DoctorID && o.Status.IsActive() && o.ActiveRange().Overlaps(r.ActiveRange()) {
			return true
		}
	}
	return false
}

func (t *memTx) Insert(_ context.Context, r Reservation) (*Reservation, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if t.excluded(r) {
		return nil, ErrSlotUnavailable
	}
	if r.IdempotencyKey != nil {
		if _, err := t.FindByIdempotencyKey(context.Background(), r.PatientID, r.DoctorID, *r.IdempotencyKey); err == nil {
			return nil, ErrSlotUnavailable
		}
	}
	r.CreatedAt, r.UpdatedAt = time.Now(), time.Now()
	t.m.reservations[r.ID] = r
	return &r, nil
}

func (t *memTx) Update(_ context.Context, r Reservation, from Status) (*Reservation, error) {
	cur, ok := t.m.reservations[r.ID]
	if !ok || cur.Status != from {
		return nil, ErrInvalidTransition
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if t.excluded(r) {
		return nil, ErrSlotUnavailable
	}
	r.UpdatedAt = time.Now()
	t.m.reservations[r.ID] = r
	return &r, nil
}

func (t *memTx) ExpireDue(_ context.Context, status Status, now time.Time) ([]Reservation, error) {
	var out []Reservation
	for _, r := range sortedValues(t.m.reservations) {
		if r.Status != status {
			continue
		}
		deadline := r.PendingExpiresAt
		if status == StatusHold {
			deadline = r.HoldExpiresAt
		}
		if deadline == nil || deadline.After(now) {
			continue
		}
		r.apply(Closed{Final: StatusExpired})
		t.m.reservations[r.ID] = r
		out = append(out, r)
	}
	return out, nil
}

func (t *memTx) AppendNotification(_ context.Context, req notification.Request) error {
	t.m.notifications = append(t.m.notifications, req)
	return nil
}

func (t *memTx) AppendReminderOnce(_ context.Context, req notification.Request) (bool, error) {
	if t.m.reminded[*req.ReservationID] {
		return false, nil
	}
	t.m.reminded[*req.ReservationID] = true
	t.m.notifications = append(t.m.notifications, req)
	return true, nil
}

func (t *memTx) SaveIntake(_ context.Context, id uuid.UUID, answers json.RawMessage) error {
	t.m.intakes[id] = answers
	return nil
}

func (t *memTx) IntakeComplete(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := t.m.intakes[id]
	return ok, nil
}

// mutexLocker serialises per doctor like the Redis lock.
type mutexLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newMutexLocker() *mutexLocker {
	return &mutexLocker{locks: map[uuid.UUID]*sync.Mutex{}}
}

func (l *mutexLocker) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[doctorID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[doctorID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

type fakeAvailability struct {
	clinics map[uuid.UUID]availability.Clinic
	types   map[uuid.UUID]availability.AppointmentType
	windows []availability.Window
}

func (f *fakeAvailability) GetClinic(_ context.Context, id uuid.UUID) (*availability.Clinic, error) {
	c, ok := f.clinics[id]
	if !ok {
		return nil, availability.ErrClinicNotFound
	}
	return &c, nil
}

func (f *fakeAvailability) GetAppointmentType(_ context.Context, id uuid.UUID) (*availability.AppointmentType, error) {
	t, ok := f.types[id]
	if !ok {
		return nil, availability.ErrAppointmentTypeNotFound
	}
	return &t, nil
}

func (f *fakeAvailability) ListActiveWindows(_ context.Context, doctorID, clinicID uuid.UUID, day int) ([]availability.Window, error) {
	var out []availability.Window
	for _, w := range f.windows {
		if w.Active && w.DoctorID == doctorID && w.ClinicID == clinicID && w.Day == day {
			out = append(out, w)
		}
	}
	return out, nil
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type stubLimiter struct{ allow bool }

func (s stubLimiter) Allow(context.Context, string) (bool, error) { return s.allow, nil }
