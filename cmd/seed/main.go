package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/booking-engine/internal/availability"
	"github.com/clinicdesk/booking-engine/internal/booking"
	"github.com/clinicdesk/booking-engine/internal/db"
)

var consultationTypes = []string{"generale", "specialistica", "controllo", "vaccinazione"}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	patients, err := seedPatients(context.Background(), pool, 200)
	if err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}
	log.Info().Int("count", len(patients)).Msg("seeded patients")

	created, err := seedRequests(context.Background(), pool, patients, 50)
	if err != nil {
		log.Fatal().Err(err).Msg("seed appointment requests")
	}
	log.Info().Int("count", created).Msg("seeded appointment requests")

	log.Info().Msg("seed complete")
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		email := gofakeit.Email()
		_, err := pool.Exec(ctx, `
			INSERT INTO patients (id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, gofakeit.Name(), &email)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// seedRequests creates pending requests through the store so the ledger
// stays consistent with the rows. Slots come from the default schedule
// over the next two weeks; conflicting picks are skipped.
func seedRequests(ctx context.Context, pool *pgxpool.Pool, patients []uuid.UUID, count int) (int, error) {
	loc, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		return 0, err
	}

	calc := availability.NewCalculator(availability.DefaultSchedule(), loc, 90, 2*time.Hour)
	store := booking.NewPgStore(pool)
	now := time.Now().In(loc)

	created := 0
	for created < count {
		day := now.AddDate(0, 0, gofakeit.Number(1, 14))
		date := day.Format("2006-01-02")

		open, err := calc.SlotsFor(date, now, nil, nil)
		if err != nil || len(open) == 0 {
			continue
		}
		slot := open[gofakeit.Number(0, len(open)-1)]

		patientID := patients[gofakeit.Number(0, len(patients)-1)]
		actor := booking.ActorRef{Role: booking.ActorPatient, Name: gofakeit.Name()}
		appt := booking.NewRequest(patientID, slot, gofakeit.RandomString(consultationTypes), gofakeit.Sentence(6), actor, time.Now())

		entry := &booking.HistoryEntry{
			AppointmentID: appt.ID,
			Action:        booking.ActionCreated,
			Actor:         booking.ActorPatient,
			ActorName:     appt.CreatedBy,
			Changes:       booking.CreationDiff(appt),
			CreatedAt:     appt.CreatedAt,
		}
		guard := &booking.SlotGuard{Slot: slot, ExcludeID: appt.ID, BlockOnPending: true}

		if err := store.Create(ctx, appt, entry, guard); err != nil {
			// Slot races with an earlier pick; try another.
			continue
		}
		created++
	}
	return created, nil
}
