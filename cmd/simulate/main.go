package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking-platform/internal/actor"
	"github.com/hackgods/clinic-booking-platform/internal/api"
	"github.com/hackgods/clinic-booking-platform/internal/config"
	"github.com/hackgods/clinic-booking-platform/internal/db"
	"github.com/hackgods/clinic-booking-platform/internal/logging"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	ApproveRatio  float64
	PatientLimit  int
	OfferingLimit int
	DaysAhead     int
	JWTSecret     string
	PostgresDSN   string
}

// offering is one bookable (doctor, clinic, appointment type) combination.
type offering struct {
	DoctorID uuid.UUID
	ClinicID uuid.UUID
	TypeID   uuid.UUID
}

type slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type DataPool struct {
	Patients  []uuid.UUID
	Offerings []offering

	mu      sync.Mutex
	pending []pendingBooking
}

type pendingBooking struct {
	ID       uuid.UUID
	ClinicID uuid.UUID
}

func (dp *DataPool) addPending(p pendingBooking) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.pending = append(dp.pending, p)
}

func (dp *DataPool) takePending(rng *rand.Rand) (pendingBooking, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.pending) == 0 {
		return pendingBooking{}, false
	}
	i := rng.Intn(len(dp.pending))
	p := dp.pending[i]
	dp.pending[i] = dp.pending[len(dp.pending)-1]
	dp.pending = dp.pending[:len(dp.pending)-1]
	return p, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict || status == http.StatusGone || status == http.StatusTooManyRequests:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pct := func(p int) time.Duration {
		return latencies[min(len(latencies)*p/100, len(latencies)-1)]
	}
	return sum / time.Duration(len(latencies)), pct(50), pct(95), latencies[len(latencies)-1]
}

type Simulator struct {
	config SimConfig
	pool   *DataPool
	client *http.Client
	log    *zap.Logger

	metrics struct {
		Slots   OperationMetrics
		Hold    OperationMetrics
		Submit  OperationMetrics
		Approve OperationMetrics
	}
}

// simulate drives the API with patients racing for the same slots and
// reports how many holds won or lost the race.
func main() {
	base, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(base.Env, base.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig(base)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}
	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("approve_ratio", cfg.ApproveRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}
	logger.Info("data loaded", zap.Int("patients", len(dataPool.Patients)), zap.Int("offerings", len(dataPool.Offerings)))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}
	sim.Run()
	sim.PrintReport()
}

func loadConfig(base config.Config) SimConfig {
	secret := base.JWTSecret
	if secret == "" {
		secret = "dev-only-secret"
	}
	return SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 20),
		ApproveRatio:  getFloat("SIM_APPROVE_RATIO", 0.3),
		PatientLimit:  getInt("SIM_PATIENT_LIMIT", 2000),
		OfferingLimit: getInt("SIM_OFFERING_LIMIT", 50),
		DaysAhead:     getInt("SIM_DAYS_AHEAD", 7),
		JWTSecret:     secret,
		PostgresDSN:   base.PostgresDSN,
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.DaysAhead <= 0 {
		return fmt.Errorf("SIM_DAYS_AHEAD must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()

	rows, err = pool.Query(ctx, `
		SELECT doctor_id, clinic_id, id
		FROM appointment_types
		WHERE active
		ORDER BY random()
		LIMIT $1
	`, cfg.OfferingLimit)
	if err != nil {
		return nil, fmt.Errorf("load appointment types: %w", err)
	}
	for rows.Next() {
		var o offering
		if err := rows.Scan(&o.DoctorID, &o.ClinicID, &o.TypeID); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Offerings = append(dataPool.Offerings, o)
	}
	rows.Close()

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Offerings) == 0 {
		return nil, fmt.Errorf("no appointment types loaded")
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		if rng.Float64() < s.config.ApproveRatio {
			s.doApprove(ctx, rng)
			continue
		}
		s.doBooking(ctx, rng)
	}
}

// doBooking lists a doctor's slots and tries to take the first free one, so
// concurrent workers collide on the same ranges.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	o := s.pool.Offerings[rng.Intn(len(s.pool.Offerings))]
	patient := actor.Patient(s.pool.Patients[rng.Intn(len(s.pool.Patients))])
	date := time.Now().AddDate(0, 0, 1+rng.Intn(s.config.DaysAhead)).Format("2006-01-02")

	var free []slot
	status, err := s.call(ctx, &s.metrics.Slots, patient, http.MethodGet,
		fmt.Sprintf("/doctors/%s/slots?clinic_id=%s&appointment_type_id=%s&date=%s", o.DoctorID, o.ClinicID, o.TypeID, date),
		nil, &free)
	if err != nil || status != http.StatusOK || len(free) == 0 {
		return
	}

	var held struct {
		ID     uuid.UUID `json:"id"`
		Status string    `json:"status"`
	}
	status, err = s.call(ctx, &s.metrics.Hold, patient, http.MethodPost, "/reservations", map[string]any{
		"doctor_id":           o.DoctorID,
		"clinic_id":           o.ClinicID,
		"appointment_type_id": o.TypeID,
		"start":               free[0].Start,
	}, &held)
	if err != nil || status != http.StatusCreated {
		return
	}

	path := "/reservations/" + held.ID.String()
	if status, err := s.call(ctx, nil, patient, http.MethodPost, path+"/intake",
		map[string]any{"answers": map[string]string{"reason": "simulated visit"}}, nil); err != nil || status != http.StatusNoContent {
		return
	}
	status, err = s.call(ctx, &s.metrics.Submit, patient, http.MethodPost, path+"/submit", nil, &held)
	if err == nil && status == http.StatusOK && held.Status == "PENDING_APPROVAL" {
		s.pool.addPending(pendingBooking{ID: held.ID, ClinicID: o.ClinicID})
	}
}

func (s *Simulator) doApprove(ctx context.Context, rng *rand.Rand) {
	p, ok := s.pool.takePending(rng)
	if !ok {
		return
	}
	staff := actor.Staff(uuid.New(), p.ClinicID)
	_, _ = s.call(ctx, &s.metrics.Approve, staff, http.MethodPost, "/reservations/"+p.ID.String()+"/approve", nil, nil)
}

// call performs one authenticated request and decodes a 2xx body into out.
func (s *Simulator) call(ctx context.Context, om *OperationMetrics, a actor.Actor, method, path string, body, out any) (int, error) {
	token, err := api.IssueToken(s.config.JWTSecret, a, time.Hour)
	if err != nil {
		return 0, err
	}

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if om != nil && ctx.Err() == nil {
			om.Record(time.Since(start), 0)
		}
		return 0, err
	}
	defer resp.Body.Close()
	if om != nil {
		om.Record(time.Since(start), resp.StatusCode)
	}

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n\n", s.config.Workers)

	printOperationReport("List slots", &s.metrics.Slots)
	printOperationReport("Create hold", &s.metrics.Hold)
	printOperationReport("Submit", &s.metrics.Submit)
	printOperationReport("Approve", &s.metrics.Approve)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	success := atomic.LoadInt64(&om.Success)
	conflicts := atomic.LoadInt64(&om.Conflict)
	errs := atomic.LoadInt64(&om.Error)
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflicts > 0 {
		fmt.Printf("  Lost race / refused: %d (%.1f%%)\n", conflicts, float64(conflicts)/float64(total)*100)
	}
	if errs > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errs, float64(errs)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond), p95.Round(time.Millisecond), max.Round(time.Millisecond))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
