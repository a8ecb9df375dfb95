// simulate drives concurrent booking traffic at a running api-server and
// then audits the database for double bookings: no (date, time) may end up
// held by more than one active appointment, no matter how contended the
// run was.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/booking-engine/internal/db"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	SlotCount   int // how many distinct slots the workers fight over
	PostgresDSN string
}

type OperationMetrics struct {
	Total    int64
	Success  int64
	Conflict int64
	Error    int64
}

func (om *OperationMetrics) Record(status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}
}

type DataPool struct {
	Patients []uuid.UUID
	Slots    []slot

	mu       sync.RWMutex
	pendings []uuid.UUID
}

type slot struct {
	Date string
	Time string
}

func (dp *DataPool) AddPending(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.pendings = append(dp.pendings, id)
}

func (dp *DataPool) RandomPending() (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.pendings) == 0 {
		return uuid.Nil, false
	}
	return dp.pendings[rand.Intn(len(dp.pendings))], true
}

type Simulator struct {
	cfg     SimConfig
	pool    *DataPool
	client  *http.Client
	creates OperationMetrics
	accepts OperationMetrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		SlotCount:   getInt("SIM_SLOT_COUNT", 16),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	log.Printf("config: duration=%s workers=%d slots=%d", cfg.Duration, cfg.Workers, cfg.SlotCount)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("loaded: %d patients, %d contended slots", len(dataPool.Patients), len(dataPool.Slots))

	sim := &Simulator{
		cfg:    cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	sim.Run()
	sim.PrintReport()

	if err := auditDoubleBookings(context.Background(), pgPool); err != nil {
		log.Fatalf("AUDIT FAILED: %v", err)
	}
	log.Println("audit passed: no slot has more than one active appointment")
}

func loadDataPool(ctx context.Context, pgPool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	rows, err := pgPool.Query(ctx, `SELECT id FROM patients LIMIT 500`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dp := &DataPool{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Patients = append(dp.Patients, id)
	}
	if len(dp.Patients) == 0 {
		return nil, fmt.Errorf("no patients found, run cmd/seed first")
	}

	// A deliberately narrow band of slots maximizes contention.
	base := time.Now().AddDate(0, 0, 7)
	for base.Weekday() == time.Sunday {
		base = base.AddDate(0, 0, 1)
	}
	date := base.Format("2006-01-02")
	times := []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30", "12:00",
		"14:30", "15:00", "15:30", "16:00", "16:30", "17:00", "17:30", "18:00"}
	for i := 0; i < cfg.SlotCount && i < len(times); i++ {
		dp.Slots = append(dp.Slots, slot{Date: date, Time: times[i]})
	}
	return dp, rows.Err()
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				if rand.Float64() < 0.6 {
					s.doCreate(ctx)
				} else {
					s.doAccept(ctx)
				}
			}
		}()
	}
	wg.Wait()
}

func (s *Simulator) doCreate(ctx context.Context) {
	sl := s.pool.Slots[rand.Intn(len(s.pool.Slots))]
	patient := s.pool.Patients[rand.Intn(len(s.pool.Patients))]

	body, _ := json.Marshal(map[string]string{
		"patient_id":        patient.String(),
		"date":              sl.Date,
		"time":              sl.Time,
		"consultation_type": "generale",
		"reason":            "simulated visit",
	})

	status, resp := s.post(ctx, "/appointments", body, "patient")
	s.creates.Record(status)

	if status == http.StatusCreated {
		var appt struct {
			ID uuid.UUID `json:"id"`
		}
		if err := json.Unmarshal(resp, &appt); err == nil {
			s.pool.AddPending(appt.ID)
		}
	}
}

func (s *Simulator) doAccept(ctx context.Context) {
	id, ok := s.pool.RandomPending()
	if !ok {
		return
	}
	status, _ := s.post(ctx, "/appointments/"+id.String()+"/accept", nil, "admin")
	s.accepts.Record(status)
}

func (s *Simulator) post(ctx context.Context, path string, body []byte, role string) (int, []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Role", role)
	req.Header.Set("X-Actor-Name", "simulator")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func (s *Simulator) PrintReport() {
	report := func(name string, om *OperationMetrics) {
		log.Printf("%-8s total=%d success=%d conflict=%d error=%d",
			name, om.Total, om.Success, om.Conflict, om.Error)
	}
	report("create", &s.creates)
	report("accept", &s.accepts)
}

// auditDoubleBookings fails when any (date, time) is held by more than one
// active appointment.
func auditDoubleBookings(ctx context.Context, pgPool *pgxpool.Pool) error {
	rows, err := pgPool.Query(ctx, `
		SELECT date, time, count(*)
		FROM appointments
		WHERE status NOT IN ('rejected', 'rejected_by_patient', 'cancelled', 'completed', 'no_show')
		  AND status <> 'pending'
		GROUP BY date, time
		HAVING count(*) > 1
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var date, t string
		var n int
		if err := rows.Scan(&date, &t, &n); err != nil {
			return err
		}
		return fmt.Errorf("slot %s %s held by %d active appointments", date, t, n)
	}
	return rows.Err()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
