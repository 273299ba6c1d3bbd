package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/ids"
	"github.com/clinic/clinic/internal/platform/validation"
)

var testNow = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	seeder  *Seeder
	ids     *identity.Service
	appts   scheduling.AppointmentRepository
	records billing.RecordRepository
}

func newFixture(policy auth.Policy) *fixture {
	clock := func() time.Time { return testNow }
	dir := identity.NewService(identity.NewPatientRepoMem(), identity.NewDoctorRepoMem(), ids.NewSequenceGenerator("P"), policy, zerolog.Nop())
	dir.SetClock(clock)
	appts := scheduling.NewAppointmentRepoMem()
	sched := scheduling.NewService(appts, dir, policy, zerolog.Nop())
	sched.SetClock(clock)
	records := billing.NewRecordRepoMem()
	bills := billing.NewService(records, dir, policy, zerolog.Nop())
	bills.SetClock(clock)

	seeder := NewSeeder(dir, sched, bills, DefaultSeedConfig(), zerolog.Nop())
	seeder.SetClock(clock)
	return &fixture{seeder: seeder, ids: dir, appts: appts, records: records}
}

func TestSeed_Counts(t *testing.T) {
	f := newFixture(auth.AllowAll)
	cfg := DefaultSeedConfig()

	res, err := f.seeder.Seed(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Doctors != cfg.Doctors {
		t.Errorf("expected %d doctors, got %d", cfg.Doctors, res.Doctors)
	}
	if res.Patients == 0 || res.Patients > cfg.Patients {
		t.Errorf("unexpected patient count %d", res.Patients)
	}
	if res.Appointments == 0 || res.Appointments > res.Patients*cfg.AppointmentsPerPatient {
		t.Errorf("unexpected appointment count %d", res.Appointments)
	}
	if res.BillingRecords != res.Patients*cfg.BillsPerPatient {
		t.Errorf("expected %d billing records, got %d", res.Patients*cfg.BillsPerPatient, res.BillingRecords)
	}

	patients, _ := f.ids.ListPatients(context.Background())
	if len(patients) != res.Patients {
		t.Errorf("store holds %d patients, result says %d", len(patients), res.Patients)
	}
	appts, _ := f.appts.List(context.Background())
	if len(appts) != res.Appointments {
		t.Errorf("store holds %d appointments, result says %d", len(appts), res.Appointments)
	}
	records, _ := f.records.List(context.Background())
	if len(records) != res.BillingRecords {
		t.Errorf("store holds %d records, result says %d", len(records), res.BillingRecords)
	}
}

func TestSeed_Deterministic(t *testing.T) {
	names := func() []string {
		f := newFixture(auth.AllowAll)
		if _, err := f.seeder.Seed(context.Background(), DefaultSeedConfig()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		patients, _ := f.ids.ListPatients(context.Background())
		out := make([]string, 0, len(patients))
		for _, p := range patients {
			out = append(out, p.ID+"|"+p.Name+"|"+p.DateOfBirth.Format(validation.DateLayout))
		}
		return out
	}

	a, b := names(), names()
	if strings.Join(a, ",") != strings.Join(b, ",") {
		t.Errorf("expected identical patients for the same seed\n%v\n%v", a, b)
	}
}

func TestSeed_RecordsRespectInvariants(t *testing.T) {
	f := newFixture(auth.AllowAll)
	cfg := DefaultSeedConfig()
	cfg.Patients = 40
	cfg.AppointmentsPerPatient = 8
	if _, err := f.seeder.Seed(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	today := validation.Day(testNow)
	earliest := today.AddDate(0, 0, -cfg.HistoryMonths*30)
	latest := today.AddDate(0, 0, cfg.FutureDays)

	appts, _ := f.appts.List(context.Background())
	seen := make(map[string]bool)
	for _, a := range appts {
		key := a.DoctorName + "|" + a.Date.Format(validation.DateLayout) + "|" + a.Time
		if seen[key] {
			t.Fatalf("double booking for %s", key)
		}
		seen[key] = true
		if !scheduling.IsSlot(a.Time) {
			t.Errorf("appointment at non-slot time %q", a.Time)
		}
		if a.Date.Before(earliest) || a.Date.After(latest) {
			t.Errorf("appointment date %s outside window", a.Date.Format(validation.DateLayout))
		}
	}

	records, _ := f.records.List(context.Background())
	for _, r := range records {
		if r.Amount <= 0 {
			t.Errorf("non-positive amount %v", r.Amount)
		}
		if r.Date.After(today) {
			t.Errorf("billing date %s after today", r.Date.Format(validation.DateLayout))
		}
	}
}

func TestSeed_ConcurrentRunsNeverDoubleBook(t *testing.T) {
	f := newFixture(auth.AllowAll)
	cfg := DefaultSeedConfig()
	cfg.Doctors = 2
	cfg.AppointmentsPerPatient = 10

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			run := cfg
			run.Seed = seed
			if _, err := f.seeder.Seed(context.Background(), run); err != nil {
				t.Errorf("seed %d: %v", seed, err)
			}
		}(int64(i + 1))
	}
	wg.Wait()

	appts, _ := f.appts.List(context.Background())
	seen := make(map[string]bool)
	for _, a := range appts {
		key := a.DoctorName + "|" + a.Date.Format(validation.DateLayout) + "|" + a.Time
		if seen[key] {
			t.Fatalf("double booking for %s", key)
		}
		seen[key] = true
	}
}

func TestSeed_PastAppointmentsIncluded(t *testing.T) {
	f := newFixture(auth.AllowAll)
	if _, err := f.seeder.Seed(context.Background(), DefaultSeedConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	appts, _ := f.appts.List(context.Background())
	past := 0
	for _, a := range appts {
		if a.Date.Before(validation.Day(testNow)) {
			past++
		}
	}
	if past == 0 {
		t.Error("expected historical appointments for reports")
	}
}

func TestSeed_NoDoctorsSkipsAppointments(t *testing.T) {
	f := newFixture(auth.AllowAll)
	cfg := DefaultSeedConfig()
	cfg.Doctors = 0

	res, err := f.seeder.Seed(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Appointments != 0 {
		t.Errorf("expected no appointments, got %d", res.Appointments)
	}
}

func TestSeed_Forbidden(t *testing.T) {
	deny := auth.PolicyFunc(func(context.Context, auth.Action) error { return auth.ErrForbidden })
	f := newFixture(deny)

	_, err := f.seeder.Seed(context.Background(), DefaultSeedConfig())
	if !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestSeedHandler(t *testing.T) {
	f := newFixture(auth.AllowAll)
	h := NewSeedHandler(f.seeder)
	e := echo.New()

	body := `{"patients":5,"doctors":2,"appointments_per_patient":1,"bills_per_patient":1,"history_months":2,"future_days":10,"seed":7}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sandbox/seed", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.handleSeed(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var res SeedResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Doctors != 2 || res.BillingRecords != res.Patients {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestSeedHandler_NegativeCounts(t *testing.T) {
	f := newFixture(auth.AllowAll)
	h := NewSeedHandler(f.seeder)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sandbox/seed", strings.NewReader(`{"patients":-1}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.handleSeed(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestSeedHandler_RegisterRoutes(t *testing.T) {
	h := NewSeedHandler(newFixture(auth.AllowAll).seeder)
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))

	for _, r := range e.Routes() {
		if r.Method == http.MethodPost && r.Path == "/api/v1/sandbox/seed" {
			return
		}
	}
	t.Error("expected POST /api/v1/sandbox/seed")
}
