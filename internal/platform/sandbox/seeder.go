// Package sandbox generates reproducible demo data for development and UI
// demos. Patients, doctors, upcoming appointments and billing records go
// through the domain services so every record passes the same validation as
// user input; appointments in the past are written to the repository
// directly because scheduling refuses past dates.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apierr"
	"github.com/clinic/clinic/internal/platform/validation"
)

// SeedConfig controls the volume and shape of generated data.
type SeedConfig struct {
	Patients               int   `json:"patients"`
	Doctors                int   `json:"doctors"`
	AppointmentsPerPatient int   `json:"appointments_per_patient"`
	BillsPerPatient        int   `json:"bills_per_patient"`
	HistoryMonths          int   `json:"history_months"`
	FutureDays             int   `json:"future_days"`
	Seed                   int64 `json:"seed"`
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Patients:               20,
		Doctors:                4,
		AppointmentsPerPatient: 4,
		BillsPerPatient:        3,
		HistoryMonths:          6,
		FutureDays:             30,
		Seed:                   42,
	}
}

// SeedResult summarizes a seed run.
type SeedResult struct {
	Patients       int           `json:"patients"`
	Doctors        int           `json:"doctors"`
	Appointments   int           `json:"appointments"`
	BillingRecords int           `json:"billing_records"`
	Skipped        int           `json:"skipped"`
	Duration       time.Duration `json:"duration"`
}

var (
	firstNames = []string{
		"James", "Mary", "Robert", "Patricia", "John", "Jennifer", "Michael", "Linda",
		"David", "Elizabeth", "William", "Barbara", "Richard", "Susan", "Joseph", "Jessica",
		"Thomas", "Sarah", "Carlos", "Aisha", "Wei", "Priya", "Omar", "Yuki",
	}
	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis",
		"Rodriguez", "Martinez", "Hernandez", "Lopez", "Wilson", "Anderson", "Thomas", "Taylor",
		"Moore", "Jackson", "Martin", "Lee", "Chen", "Patel", "Khan", "Tanaka",
	}
	histories = []string{
		"", "", "Hypertension", "Type 2 diabetes", "Asthma", "Seasonal allergies",
		"Penicillin allergy", "Hyperlipidemia", "Migraine", "Hypothyroidism",
	}
	specializations = []string{
		"General Practice", "Cardiology", "Dermatology", "Pediatrics",
		"Orthopedics", "Neurology", "Endocrinology",
	}
)

type serviceDef struct {
	name     string
	min, max float64
}

var services = []serviceDef{
	{"Consultation", 60, 150},
	{"Blood Test", 25, 90},
	{"X-Ray", 80, 250},
	{"Vaccination", 20, 60},
	{"Physiotherapy", 70, 140},
	{"ECG", 50, 120},
}

// Seeder writes generated records into the domain services.
type Seeder struct {
	identity   *identity.Service
	scheduling *scheduling.Service
	billing    *billing.Service
	config     SeedConfig
	logger     zerolog.Logger
	now        func() time.Time
}

func NewSeeder(ids *identity.Service, sched *scheduling.Service, bills *billing.Service, config SeedConfig, logger zerolog.Logger) *Seeder {
	return &Seeder{
		identity:   ids,
		scheduling: sched,
		billing:    bills,
		config:     config,
		logger:     logger.With().Str("component", "sandbox").Logger(),
		now:        time.Now,
	}
}

// SetClock replaces the time source that defines "today". It should match
// the clock of the services the seeder writes to.
func (s *Seeder) SetClock(now func() time.Time) { s.now = now }

// Seed generates a data set from cfg. The same seed and clock produce the
// same records, IDs aside. ctx must carry an identity allowed to create
// patients, doctors, appointments and billing records.
func (s *Seeder) Seed(ctx context.Context, cfg SeedConfig) (*SeedResult, error) {
	start := time.Now()
	rng := rand.New(rand.NewSource(cfg.Seed))
	today := validation.Day(s.now())
	res := &SeedResult{}

	doctors := make([]identity.Doctor, 0, cfg.Doctors)
	for i := 0; i < cfg.Doctors; i++ {
		d, err := s.identity.AddDoctor(ctx, identity.DoctorInput{
			Name:           fmt.Sprintf("Dr. %s %s", pick(rng, firstNames), pick(rng, lastNames)),
			Specialization: pick(rng, specializations),
			Contact:        phone(rng),
		})
		if err != nil {
			return nil, fmt.Errorf("seeding doctor: %w", err)
		}
		doctors = append(doctors, d)
	}
	res.Doctors = len(doctors)

	patients := make([]identity.Patient, 0, cfg.Patients)
	for i := 0; i < cfg.Patients; i++ {
		first, last := pick(rng, firstNames), pick(rng, lastNames)
		dob := time.Date(1940+rng.Intn(70), time.Month(1+rng.Intn(12)), 1+rng.Intn(28), 0, 0, 0, 0, time.UTC)
		contact := phone(rng)
		if rng.Intn(2) == 0 {
			contact = fmt.Sprintf("%s.%s@example.com", first, last)
		}
		p, err := s.identity.AddPatient(ctx, identity.PatientInput{
			Name:           first + " " + last,
			DateOfBirth:    dob.Format(validation.DateLayout),
			Contact:        contact,
			MedicalHistory: pick(rng, histories),
		})
		if err != nil {
			if _, dup := identity.IsDuplicate(err); dup {
				res.Skipped++
				continue
			}
			return nil, fmt.Errorf("seeding patient: %w", err)
		}
		patients = append(patients, p)
	}
	res.Patients = len(patients)

	if len(doctors) > 0 {
		slots := scheduling.TimeSlots()
		historyDays := cfg.HistoryMonths * 30
		for _, p := range patients {
			for i := 0; i < cfg.AppointmentsPerPatient; i++ {
				doctor := doctors[rng.Intn(len(doctors))]
				date := today.AddDate(0, 0, rng.Intn(historyDays+cfg.FutureDays+1)-historyDays)
				slot := slots[rng.Intn(len(slots))]
				if err := s.appointment(ctx, p, doctor, date, slot); err != nil {
					if errors.Is(err, scheduling.ErrSlotTaken) {
						res.Skipped++
						continue
					}
					return nil, fmt.Errorf("seeding appointment: %w", err)
				}
				res.Appointments++
			}
		}
	}

	for _, p := range patients {
		for i := 0; i < cfg.BillsPerPatient; i++ {
			svc := services[rng.Intn(len(services))]
			amount := svc.min + rng.Float64()*(svc.max-svc.min)
			date := today.AddDate(0, 0, -rng.Intn(cfg.HistoryMonths*30+1))
			if _, err := s.billing.Add(ctx, billing.RecordInput{
				PatientID: p.ID,
				Service:   svc.name,
				Amount:    strconv.FormatFloat(amount, 'f', 2, 64),
				Date:      date.Format(validation.DateLayout),
			}); err != nil {
				return nil, fmt.Errorf("seeding billing record: %w", err)
			}
			res.BillingRecords++
		}
	}

	res.Duration = time.Since(start)
	s.logger.Info().
		Int("patients", res.Patients).
		Int("doctors", res.Doctors).
		Int("appointments", res.Appointments).
		Int("billing_records", res.BillingRecords).
		Int("skipped", res.Skipped).
		Dur("duration", res.Duration).
		Msg("demo data seeded")
	return res, nil
}

// appointment books upcoming dates and backfills past ones, both through
// the scheduling service so the slot check holds under concurrent seeds.
func (s *Seeder) appointment(ctx context.Context, p identity.Patient, d identity.Doctor, date time.Time, slot string) error {
	if !date.Before(validation.Day(s.now())) {
		_, err := s.scheduling.Schedule(ctx, scheduling.AppointmentInput{
			PatientID: p.ID,
			DoctorID:  d.ID.String(),
			Date:      date.Format(validation.DateLayout),
			Time:      slot,
		})
		return err
	}

	_, err := s.scheduling.Backfill(ctx, p, d, date, slot)
	return err
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

func phone(rng *rand.Rand) string {
	return fmt.Sprintf("555-%03d-%04d", rng.Intn(1000), rng.Intn(10000))
}

// SeedHandler exposes the seeder over HTTP in development.
type SeedHandler struct {
	seeder *Seeder
}

func NewSeedHandler(seeder *Seeder) *SeedHandler {
	return &SeedHandler{seeder: seeder}
}

func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/sandbox/seed", h.handleSeed)
}

// handleSeed seeds with the configured defaults, overridden by any fields
// in the JSON body.
func (h *SeedHandler) handleSeed(c echo.Context) error {
	cfg := h.seeder.config
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&cfg); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid seed configuration")
		}
	}
	if cfg.Patients < 0 || cfg.Doctors < 0 || cfg.AppointmentsPerPatient < 0 || cfg.BillsPerPatient < 0 || cfg.HistoryMonths < 0 || cfg.FutureDays < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "seed counts must not be negative")
	}
	res, err := h.seeder.Seed(c.Request().Context(), cfg)
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, res)
}
