package availability

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking-platform/internal/actor"
)

// memRepo is an in-memory Repository. WithDoctorTx serialises on one mutex
// and commits nothing on error.
type memRepo struct {
	mu      sync.Mutex
	clinics map[uuid.UUID]Clinic
	windows map[uuid.UUID]Window
	types   map[uuid.UUID]AppointmentType
}

func newMemRepo() *memRepo {
	return &memRepo{
		clinics: map[uuid.UUID]Clinic{},
		windows: map[uuid.UUID]Window{},
		types:   map[uuid.UUID]AppointmentType{},
	}
}

func (m *memRepo) addClinic(name string) Clinic {
	c := Clinic{ID: uuid.New(), Name: name, Timezone: "UTC", Active: true}
	m.clinics[c.ID] = c
	return c
}

func (m *memRepo) GetClinic(_ context.Context, id uuid.UUID) (*Clinic, error) {
	c, ok := m.clinics[id]
	if !ok {
		return nil, ErrClinicNotFound
	}
	return &c, nil
}

func (m *memRepo) CreateClinic(_ context.Context, c Clinic) (*Clinic, error) {
	c.ID = uuid.New()
	m.clinics[c.ID] = c
	return &c, nil
}

func (m *memRepo) GetAppointmentType(_ context.Context, id uuid.UUID) (*AppointmentType, error) {
	t, ok := m.types[id]
	if !ok {
		return nil, ErrAppointmentTypeNotFound
	}
	return &t, nil
}

func (m *memRepo) CreateAppointmentType(_ context.Context, t AppointmentType) (*AppointmentType, error) {
	t.ID = uuid.New()
	t.Active = true
	m.types[t.ID] = t
	return &t, nil
}

func (m *memRepo) ListAppointmentTypes(_ context.Context, doctorID uuid.UUID, clinicID *uuid.UUID) ([]AppointmentType, error) {
	var out []AppointmentType
	for _, t := range m.types {
		if t.DoctorID == doctorID && (clinicID == nil || t.ClinicID == *clinicID) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memRepo) GetWindow(_ context.Context, id uuid.UUID) (*Window, error) {
	w, ok := m.windows[id]
	if !ok {
		return nil, ErrWindowNotFound
	}
	return &w, nil
}

func (m *memRepo) ListActiveWindows(_ context.Context, doctorID, clinicID uuid.UUID, day int) ([]Window, error) {
	var out []Window
	for _, w := range m.windows {
		if w.Active && w.DoctorID == doctorID && w.ClinicID == clinicID && w.Day == day {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartMinute < out[j].StartMinute })
	return out, nil
}

func (m *memRepo) ListWindowsByDoctor(_ context.Context, doctorID uuid.UUID) ([]Window, error) {
	var out []Window
	for _, w := range m.windows {
		if w.DoctorID == doctorID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *memRepo) WithDoctorTx(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context, tx WindowTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, m)
}

func (m *memRepo) ActiveWindowsForDoctor(_ context.Context, doctorID uuid.UUID) ([]Window, error) {
	var out []Window
	for _, w := range m.windows {
		if w.Active && w.DoctorID == doctorID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *memRepo) GetWindowForUpdate(ctx context.Context, id uuid.UUID) (*Window, error) {
	return m.GetWindow(ctx, id)
}

func (m *memRepo) InsertWindow(_ context.Context, w Window) (*Window, error) {
	w.ID = uuid.New()
	w.Active = true
	m.windows[w.ID] = w
	return &w, nil
}

func (m *memRepo) UpdateWindow(_ context.Context, w Window) (*Window, error) {
	m.windows[w.ID] = w
	return &w, nil
}

func (m *memRepo) DeactivateWindow(_ context.Context, id uuid.UUID) (*Window, error) {
	w, ok := m.windows[id]
	if !ok {
		return nil, ErrWindowNotFound
	}
	w.Active = false
	m.windows[id] = w
	return &w, nil
}

func TestCreateWindow_RejectsOverlapAtAnotherClinic(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, zap.NewNop())
	ctx := context.Background()

	clinicA := repo.addClinic("A")
	clinicB := repo.addClinic("B")
	doctor := uuid.New()
	admin := actor.Admin(uuid.New())

	_, err := svc.CreateWindow(ctx, admin, WindowInput{
		DoctorID: doctor, ClinicID: clinicA.ID, Day: 0, StartMinute: 9 * 60, EndMinute: 13 * 60,
	})
	if err != nil {
		t.Fatalf("create Mon 09-13 at A: %v", err)
	}

	_, err = svc.CreateWindow(ctx, admin, WindowInput{
		DoctorID: doctor, ClinicID: clinicB.ID, Day: 0, StartMinute: 12 * 60, EndMinute: 14 * 60,
	})
	if !errors.Is(err, ErrAvailabilityConflict) {
		t.Fatalf("expected ErrAvailabilityConflict, got %v", err)
	}
	var ce *WindowConflictError
	if !errors.As(err, &ce) || ce.SameClinic || ce.Existing.ClinicID != clinicA.ID {
		t.Fatalf("expected cross-clinic conflict naming clinic A, got %#v", err)
	}

	if ws, _ := repo.ListWindowsByDoctor(ctx, doctor); len(ws) != 1 {
		t.Fatalf("expected rejected window not stored, have %d", len(ws))
	}
}

func TestCreateWindow_SameClinicConflictAndAdjacent(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, zap.NewNop())
	ctx := context.Background()

	clinic := repo.addClinic("A")
	doctor := uuid.New()
	a := actor.Doctor(doctor)

	if _, err := svc.CreateWindow(ctx, a, WindowInput{DoctorID: doctor, ClinicID: clinic.ID, Day: 2, StartMinute: 540, EndMinute: 720}); err != nil {
		t.Fatal(err)
	}

	_, err := svc.CreateWindow(ctx, a, WindowInput{DoctorID: doctor, ClinicID: clinic.ID, Day: 2, StartMinute: 600, EndMinute: 660})
	var ce *WindowConflictError
	if !errors.As(err, &ce) || !ce.SameClinic {
		t.Fatalf("expected same-clinic conflict, got %v", err)
	}

	if _, err := svc.CreateWindow(ctx, a, WindowInput{DoctorID: doctor, ClinicID: clinic.ID, Day: 2, StartMinute: 720, EndMinute: 780}); err != nil {
		t.Fatalf("adjacent window should be accepted: %v", err)
	}
}

func TestCreateWindow_Validation(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, zap.NewNop())
	clinic := repo.addClinic("A")
	doctor := uuid.New()

	tests := []struct {
		name string
		in   WindowInput
	}{
		{"start after end", WindowInput{DoctorID: doctor, ClinicID: clinic.ID, Day: 0, StartMinute: 720, EndMinute: 540}},
		{"empty", WindowInput{DoctorID: doctor, ClinicID: clinic.ID, Day: 0, StartMinute: 540, EndMinute: 540}},
		{"bad day", WindowInput{DoctorID: doctor, ClinicID: clinic.ID, Day: 7, StartMinute: 540, EndMinute: 600}},
		{"past midnight", WindowInput{DoctorID: doctor, ClinicID: clinic.ID, Day: 0, StartMinute: 1380, EndMinute: 1500}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateWindow(context.Background(), actor.Doctor(doctor), tt.in)
			if !errors.Is(err, ErrInvalidWindow) {
				t.Fatalf("expected ErrInvalidWindow, got %v", err)
			}
		})
	}
}

func TestCreateWindow_Authorization(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, zap.NewNop())
	clinicA := repo.addClinic("A")
	clinicB := repo.addClinic("B")
	doctor := uuid.New()
	in := WindowInput{DoctorID: doctor, ClinicID: clinicA.ID, Day: 1, StartMinute: 540, EndMinute: 600}

	tests := []struct {
		name    string
		actor   actor.Actor
		allowed bool
	}{
		{"own doctor", actor.Doctor(doctor), true},
		{"other doctor", actor.Doctor(uuid.New()), false},
		{"staff of clinic", actor.Staff(uuid.New(), clinicA.ID), true},
		{"staff of other clinic", actor.Staff(uuid.New(), clinicB.ID), false},
		{"patient", actor.Patient(uuid.New()), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo.windows = map[uuid.UUID]Window{}
			_, err := svc.CreateWindow(context.Background(), tt.actor, in)
			if tt.allowed && err != nil {
				t.Fatalf("expected allowed, got %v", err)
			}
			if !tt.allowed && !errors.Is(err, ErrForbidden) {
				t.Fatalf("expected ErrForbidden, got %v", err)
			}
		})
	}
}

func TestUpdateWindow_IgnoresItselfAndRechecks(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, zap.NewNop())
	ctx := context.Background()
	clinic := repo.addClinic("A")
	doctor := uuid.New()
	a := actor.Doctor(doctor)

	w1, _ := svc.CreateWindow(ctx, a, WindowInput{DoctorID: doctor, ClinicID: clinic.ID, Day: 0, StartMinute: 540, EndMinute: 600})
	if _, err := svc.CreateWindow(ctx, a, WindowInput{DoctorID: doctor, ClinicID: clinic.ID, Day: 0, StartMinute: 660, EndMinute: 720}); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.UpdateWindow(ctx, a, w1.ID, 0, 540, 630); err != nil {
		t.Fatalf("growing into free time should pass: %v", err)
	}
	if _, err := svc.UpdateWindow(ctx, a, w1.ID, 0, 540, 690); !errors.Is(err, ErrAvailabilityConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestDeactivateWindow_FreesTheSpan(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, zap.NewNop())
	ctx := context.Background()
	clinic := repo.addClinic("A")
	doctor := uuid.New()
	a := actor.Doctor(doctor)

	w, _ := svc.CreateWindow(ctx, a, WindowInput{DoctorID: doctor, ClinicID: clinic.ID, Day: 4, StartMinute: 540, EndMinute: 600})
	if _, err := svc.DeactivateWindow(ctx, a, w.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateWindow(ctx, a, WindowInput{DoctorID: doctor, ClinicID: clinic.ID, Day: 4, StartMinute: 540, EndMinute: 600}); err != nil {
		t.Fatalf("deactivated window must not block: %v", err)
	}
	if ws, _ := repo.ListWindowsByDoctor(ctx, doctor); len(ws) != 2 {
		t.Fatalf("windows are never deleted, have %d", len(ws))
	}
}

func TestCreateAppointmentType(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, zap.NewNop())
	clinic := repo.addClinic("A")
	doctor := uuid.New()

	typ, err := svc.CreateAppointmentType(context.Background(), actor.Doctor(doctor), AppointmentTypeInput{
		DoctorID: doctor, ClinicID: clinic.ID, Name: " Consultation ", Duration: 30 * time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}
	if typ.Name != "Consultation" || !typ.Bookable(doctor, clinic.ID) {
		t.Fatalf("unexpected type %+v", typ)
	}

	_, err = svc.CreateAppointmentType(context.Background(), actor.Doctor(doctor), AppointmentTypeInput{
		DoctorID: doctor, ClinicID: clinic.ID, Name: "Bad", Duration: 0,
	})
	if !errors.Is(err, ErrInvalidAppointmentType) {
		t.Fatalf("expected ErrInvalidAppointmentType, got %v", err)
	}
}
