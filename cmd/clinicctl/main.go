package main

import (
	"context"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking-platform/internal/appointment"
	"github.com/hackgods/clinic-booking-platform/internal/availability"
	"github.com/hackgods/clinic-booking-platform/internal/config"
	"github.com/hackgods/clinic-booking-platform/internal/db"
	"github.com/hackgods/clinic-booking-platform/internal/logging"
	"github.com/hackgods/clinic-booking-platform/internal/slots"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "clinicctl",
		Short:        "Operations CLI for the clinic booking platform",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(remindCmd())
	rootCmd.AddCommand(slotsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env bundles what every subcommand needs; closer releases it.
type env struct {
	cfg    config.Config
	log    *zap.Logger
	pool   *pgxpool.Pool
	closer func()
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := db.ConnectPostgres(connectCtx, cfg.PostgresDSN)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	return &env{
		cfg:  cfg,
		log:  logger,
		pool: pool,
		closer: func() {
			pool.Close()
			_ = logger.Sync()
		},
	}, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.closer()

			count, err := db.NewMigrator(e.pool, db.Migrations()).Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s).\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.closer()

			statuses, err := db.NewMigrator(e.pool, db.Migrations()).Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue holds, approvals and proposals once",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.closer()

			sweeper := appointment.NewSweeper(appointment.NewPgRepository(e.pool), e.log.Named("sweeper"), nil)
			res, err := sweeper.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Expired %d hold(s), %d pending approval(s), %d proposal(s).\n", res.Holds, res.Pending, res.Proposals)
			return nil
		},
	}
}

func remindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Queue reminders for confirmed bookings entering the reminder window",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.closer()

			scheduler := appointment.NewReminderScheduler(appointment.NewPgRepository(e.pool), e.log.Named("reminders"),
				e.cfg.ReminderLead, e.cfg.ReminderTolerance, nil)
			queued, err := scheduler.Schedule(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Queued %d reminder(s).\n", queued)
			return nil
		},
	}
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print the free slots for a doctor, clinic and appointment type on a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := slotRequest(cmd)
			if err != nil {
				return err
			}

			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.closer()

			availRepo := availability.NewPgRepository(e.pool)
			svc := slots.NewService(availRepo, appointment.NewPgRepository(e.pool), nil)
			list, err := svc.Generate(cmd.Context(), req)
			if err != nil {
				return err
			}

			clinic, err := availRepo.GetClinic(cmd.Context(), req.ClinicID)
			if err != nil {
				return err
			}
			loc, err := clinic.Location()
			if err != nil {
				return err
			}

			if len(list) == 0 {
				fmt.Println("No free slots.")
				return nil
			}
			for _, s := range list {
				fmt.Printf("%s - %s\n", s.Start.In(loc).Format("15:04"), s.End.In(loc).Format("15:04"))
			}
			return nil
		},
	}
	cmd.Flags().String("doctor", "", "Doctor ID")
	cmd.Flags().String("clinic", "", "Clinic ID")
	cmd.Flags().String("type", "", "Appointment type ID")
	cmd.Flags().String("date", time.Now().Format("2006-01-02"), "Date (YYYY-MM-DD) in the clinic's timezone")
	for _, f := range []string{"doctor", "clinic", "type"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func slotRequest(cmd *cobra.Command) (slots.Request, error) {
	var req slots.Request
	ids := map[string]*uuid.UUID{
		"doctor": &req.DoctorID,
		"clinic": &req.ClinicID,
		"type":   &req.AppointmentTypeID,
	}
	for flag, dst := range ids {
		raw, _ := cmd.Flags().GetString(flag)
		id, err := uuid.Parse(raw)
		if err != nil {
			return req, fmt.Errorf("--%s: %w", flag, err)
		}
		*dst = id
	}

	raw, _ := cmd.Flags().GetString("date")
	date, err := slots.ParseDate(raw)
	if err != nil {
		return req, fmt.Errorf("--date: %w", err)
	}
	req.Date = date
	return req, nil
}
