package main

import (
	"context"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking-platform/internal/actor"
	"github.com/hackgods/clinic-booking-platform/internal/availability"
	"github.com/hackgods/clinic-booking-platform/internal/config"
	"github.com/hackgods/clinic-booking-platform/internal/conflict"
	"github.com/hackgods/clinic-booking-platform/internal/db"
	"github.com/hackgods/clinic-booking-platform/internal/logging"
)

const (
	clinicCount  = 3
	doctorCount  = 40
	patientCount = 5000
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var timezones = []string{"Europe/London", "America/New_York", "Asia/Kolkata"}

// Each doctor works mornings at one clinic and afternoons at another, so the
// seeded calendars exercise cross-clinic availability without overlapping.
var shifts = []struct{ start, end string }{
	{"09:00", "12:00"},
	{"13:00", "17:00"},
}

var visitTypes = []struct {
	name     string
	duration time.Duration
}{
	{"Consultation", 30 * time.Minute},
	{"Follow-up", 15 * time.Minute},
	{"Extended visit", time.Hour},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	svc := availability.NewService(availability.NewPgRepository(pool), logger.Named("availability"))

	clinics, err := seedClinics(ctx, svc, clinicCount)
	if err != nil {
		logger.Fatal("seed clinics", zap.Error(err))
	}
	doctors, err := seedDoctors(ctx, pool, doctorCount)
	if err != nil {
		logger.Fatal("seed doctors", zap.Error(err))
	}
	if err := seedSchedules(ctx, svc, doctors, clinics); err != nil {
		logger.Fatal("seed schedules", zap.Error(err))
	}
	if err := seedPatients(ctx, pool, logger, patientCount); err != nil {
		logger.Fatal("seed patients", zap.Error(err))
	}

	logger.Info("seed complete",
		zap.Int("clinics", len(clinics)),
		zap.Int("doctors", len(doctors)),
		zap.Int("patients", patientCount),
	)
}

func seedClinics(ctx context.Context, svc *availability.Service, count int) ([]availability.Clinic, error) {
	out := make([]availability.Clinic, 0, count)
	for i := 0; i < count; i++ {
		c, err := svc.CreateClinic(ctx, actor.System, availability.Clinic{
			Name:               gofakeit.Company() + " Clinic",
			Timezone:           timezones[i%len(timezones)],
			RequiresApproval:   i%2 == 0,
			CancellationNotice: 24 * time.Hour,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, "Dr. "+gofakeit.Name(), gofakeit.RandomString(specialties))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

// seedSchedules gives every doctor weekday shifts at two clinics and the
// standard visit types at both.
func seedSchedules(ctx context.Context, svc *availability.Service, doctors []uuid.UUID, clinics []availability.Clinic) error {
	for i, doctor := range doctors {
		for s, shift := range shifts {
			clinic := clinics[(i+s)%len(clinics)]
			start, end := mustClock(shift.start), mustClock(shift.end)

			for day := 0; day < 5; day++ {
				_, err := svc.CreateWindow(ctx, actor.System, availability.WindowInput{
					DoctorID:    doctor,
					ClinicID:    clinic.ID,
					Day:         day,
					StartMinute: start,
					EndMinute:   end,
				})
				if err != nil {
					return fmt.Errorf("window for doctor %s: %w", doctor, err)
				}
			}

			for _, vt := range visitTypes {
				_, err := svc.CreateAppointmentType(ctx, actor.System, availability.AppointmentTypeInput{
					DoctorID: doctor,
					ClinicID: clinic.ID,
					Name:     vt.name,
					Duration: vt.duration,
				})
				if err != nil {
					return fmt.Errorf("appointment type for doctor %s: %w", doctor, err)
				}
			}
		}
	}
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger, count int) error {
	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email(), gofakeit.Phone())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		logger.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}
	return nil
}

func mustClock(s string) int {
	m, err := conflict.ParseClock(s)
	if err != nil {
		panic(err)
	}
	return m
}
