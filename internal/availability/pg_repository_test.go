package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking-platform/internal/actor"
	"github.com/hackgods/clinic-booking-platform/internal/db/dbtest"
)

func TestPgRepository_WindowExclusionConstraint(t *testing.T) {
	pool := dbtest.NewPool(t)
	ctx := context.Background()
	repo := NewPgRepository(pool)

	doctor := uuid.New()
	if _, err := pool.Exec(ctx, `INSERT INTO doctors (id, name) VALUES ($1, 'Dr. Window')`, doctor); err != nil {
		t.Fatal(err)
	}
	clinicA, err := repo.CreateClinic(ctx, Clinic{ID: uuid.New(), Name: "A", Timezone: "UTC", Active: true})
	if err != nil {
		t.Fatal(err)
	}
	clinicB, err := repo.CreateClinic(ctx, Clinic{ID: uuid.New(), Name: "B", Timezone: "UTC", Active: true})
	if err != nil {
		t.Fatal(err)
	}

	insert := func(clinicID uuid.UUID, day, start, end int) (*Window, error) {
		var out *Window
		err := repo.WithDoctorTx(ctx, doctor, func(ctx context.Context, tx WindowTx) error {
			w, err := tx.InsertWindow(ctx, Window{DoctorID: doctor, ClinicID: clinicID, Day: day, StartMinute: start, EndMinute: end})
			out = w
			return err
		})
		return out, err
	}

	first, err := insert(clinicA.ID, 0, 9*60, 12*60)
	if err != nil {
		t.Fatal(err)
	}

	// The service would catch this first; the table refuses it on its own.
	if _, err := insert(clinicB.ID, 0, 11*60, 13*60); !errors.Is(err, ErrAvailabilityConflict) {
		t.Fatalf("expected ErrAvailabilityConflict, got %v", err)
	}
	if _, err := insert(clinicB.ID, 0, 12*60, 13*60); err != nil {
		t.Fatalf("adjacent window rejected: %v", err)
	}
	if _, err := insert(clinicB.ID, 1, 9*60, 12*60); err != nil {
		t.Fatalf("other day rejected: %v", err)
	}

	bad, err := insert(clinicA.ID, 2, 10*60, 9*60)
	if err == nil || errors.Is(err, ErrAvailabilityConflict) || bad != nil {
		t.Fatalf("inverted window: %v %v", bad, err)
	}

	if err := repo.WithDoctorTx(ctx, doctor, func(ctx context.Context, tx WindowTx) error {
		_, err := tx.DeactivateWindow(ctx, first.ID)
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := insert(clinicB.ID, 0, 9*60, 11*60); err != nil {
		t.Fatalf("inactive window still blocks: %v", err)
	}

	windows, err := repo.ListWindowsByDoctor(ctx, doctor)
	if err != nil {
		t.Fatal(err)
	}
	active := 0
	for _, w := range windows {
		if w.Active {
			active++
		}
	}
	if active != 3 {
		t.Fatalf("active windows = %d, want 3", active)
	}
}

func TestPgRepository_ListAppointmentTypesByClinic(t *testing.T) {
	pool := dbtest.NewPool(t)
	ctx := context.Background()
	svc := NewService(NewPgRepository(pool), zap.NewNop())

	doctor := uuid.New()
	if _, err := pool.Exec(ctx, `INSERT INTO doctors (id, name) VALUES ($1, 'Dr. Types')`, doctor); err != nil {
		t.Fatal(err)
	}
	var clinics []uuid.UUID
	for _, name := range []string{"North", "South"} {
		c, err := svc.CreateClinic(ctx, actor.System, Clinic{Name: name, Timezone: "UTC"})
		if err != nil {
			t.Fatal(err)
		}
		clinics = append(clinics, c.ID)
	}
	for i, name := range []string{"Checkup", "Follow-up"} {
		if _, err := svc.CreateAppointmentType(ctx, actor.System, AppointmentTypeInput{
			DoctorID: doctor, ClinicID: clinics[i], Name: name, Duration: 20 * time.Minute,
		}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := svc.ListAppointmentTypes(ctx, doctor, nil)
	if err != nil || len(all) != 2 {
		t.Fatalf("all types: %+v %v", all, err)
	}
	south, err := svc.ListAppointmentTypes(ctx, doctor, &clinics[1])
	if err != nil || len(south) != 1 || south[0].Name != "Follow-up" || south[0].Duration != 20*time.Minute {
		t.Fatalf("south types: %+v %v", south, err)
	}
}
