package billing

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/validation"
)

// PatientLookup resolves the patient a record bills.
type PatientLookup interface {
	LookupPatient(ctx context.Context, id string) (identity.Patient, error)
}

type Service struct {
	records  RecordRepository
	patients PatientLookup
	policy   auth.Policy
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(records RecordRepository, patients PatientLookup, policy auth.Policy, logger zerolog.Logger) *Service {
	return &Service{
		records:  records,
		patients: patients,
		policy:   policy,
		logger:   logger.With().Str("component", "billing").Logger(),
		now:      time.Now,
	}
}

// SetClock replaces the time source that defines "today".
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// ParseAmount parses a monetary amount, which must be a finite number
// greater than zero.
func ParseAmount(raw string) (float64, error) {
	amount, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, validation.Errorf("amount", "amount must be a number")
	}
	if amount <= 0 {
		return 0, validation.Errorf("amount", "amount must be greater than zero")
	}
	return amount, nil
}

// Add validates in and stores the billing record. The date may not be
// after today.
func (s *Service) Add(ctx context.Context, in RecordInput) (Record, error) {
	if err := s.policy.Authorize(ctx, auth.ActionBilling); err != nil {
		return Record{}, err
	}
	service := validation.Clean(in.Service)
	switch {
	case validation.Blank(in.PatientID):
		return Record{}, validation.Required("patient_id")
	case service == "":
		return Record{}, validation.Required("service")
	case validation.Blank(in.Amount):
		return Record{}, validation.Required("amount")
	case validation.Blank(in.Date):
		return Record{}, validation.Required("date")
	}

	amount, err := ParseAmount(in.Amount)
	if err != nil {
		s.logger.Debug().Err(err).Str("amount", in.Amount).Msg("billing record rejected")
		return Record{}, err
	}
	date, err := validation.ParseDate(in.Date)
	if err != nil {
		return Record{}, validation.Errorf("date", "%s", err.Error())
	}
	if date.After(validation.Day(s.now())) {
		return Record{}, validation.Errorf("date", "billing date cannot be in the future")
	}
	patient, err := s.patients.LookupPatient(ctx, strings.TrimSpace(in.PatientID))
	if err != nil {
		return Record{}, validation.Errorf("patient_id", "unknown patient %q", in.PatientID)
	}

	r := Record{
		ID:          uuid.New(),
		PatientID:   patient.ID,
		PatientName: patient.Name,
		Service:     service,
		Amount:      amount,
		Date:        date,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.records.Add(ctx, r); err != nil {
		return Record{}, err
	}
	s.logger.Info().
		Str("record_id", r.ID.String()).
		Str("patient_id", r.PatientID).
		Str("service", r.Service).
		Float64("amount", r.Amount).
		Msg("billing record added")
	return r, nil
}

// Delete removes the record.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.policy.Authorize(ctx, auth.ActionBilling); err != nil {
		return err
	}
	if err := s.records.Remove(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("record_id", id.String()).Msg("billing record deleted")
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	return s.records.GetByID(ctx, id)
}

// List returns records in insertion order, optionally restricted to one
// patient.
func (s *Service) List(ctx context.Context, patientID string) ([]Record, error) {
	all, err := s.records.List(ctx)
	if err != nil {
		return nil, err
	}
	if patientID == "" {
		return all, nil
	}
	return lo.Filter(all, func(r Record, _ int) bool { return r.PatientID == patientID }), nil
}
