package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/clinic/clinic/internal/platform/apierr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/ids"
	"github.com/clinic/clinic/internal/platform/validation"
)

var (
	ErrDuplicatePatient = fmt.Errorf("duplicate patient: %w", apierr.ErrConflict)
	ErrPatientIDInUse   = fmt.Errorf("patient id already in use: %w", apierr.ErrConflict)
)

// DuplicatePatientError reports that a patient with the same name
// (case-insensitive) and date of birth already exists. Callers offer to
// edit Existing instead of inserting a second record.
type DuplicatePatientError struct {
	Existing Patient
}

func (e *DuplicatePatientError) Error() string {
	return fmt.Sprintf("a patient named %q born %s already exists (id %s)",
		e.Existing.Name, e.Existing.DateOfBirth.Format(validation.DateLayout), e.Existing.ID)
}

func (e *DuplicatePatientError) Unwrap() error { return ErrDuplicatePatient }

type Service struct {
	// mu serializes check-then-write sequences on patients.
	mu       sync.Mutex
	patients PatientRepository
	doctors  DoctorRepository
	ids      ids.Generator
	policy   auth.Policy
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(patients PatientRepository, doctors DoctorRepository, gen ids.Generator, policy auth.Policy, logger zerolog.Logger) *Service {
	return &Service{
		patients: patients,
		doctors:  doctors,
		ids:      gen,
		policy:   policy,
		logger:   logger.With().Str("component", "identity").Logger(),
		now:      time.Now,
	}
}

// SetClock replaces the time source used for audit timestamps.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// -- Patient --

type patientFields struct {
	name, contact, history string
	dob                    time.Time
}

func parsePatientInput(in PatientInput) (patientFields, error) {
	f := patientFields{
		name:    validation.Clean(in.Name),
		contact: validation.Clean(in.Contact),
		history: validation.Clean(in.MedicalHistory),
	}
	if f.name == "" {
		return f, validation.Required("name")
	}
	if validation.Blank(in.DateOfBirth) {
		return f, validation.Required("date_of_birth")
	}
	if f.contact == "" {
		return f, validation.Required("contact")
	}
	dob, err := validation.ParseDate(in.DateOfBirth)
	if err != nil {
		return f, validation.Errorf("date_of_birth", "%s", err.Error())
	}
	f.dob = dob
	return f, nil
}

// AddPatient validates in and inserts a new patient. When a patient with
// the same identity exists it returns *DuplicatePatientError and inserts
// nothing.
func (s *Service) AddPatient(ctx context.Context, in PatientInput) (Patient, error) {
	if err := s.policy.Authorize(ctx, auth.ActionPatientCreate); err != nil {
		return Patient{}, err
	}
	f, err := parsePatientInput(in)
	if err != nil {
		s.logger.Debug().Err(err).Msg("patient rejected")
		return Patient{}, err
	}
	customID := strings.TrimSpace(in.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.patients.List(ctx)
	if err != nil {
		return Patient{}, err
	}
	if dup, ok := lo.Find(existing, func(p Patient) bool { return p.SameIdentity(f.name, f.dob) }); ok {
		return Patient{}, &DuplicatePatientError{Existing: dup}
	}

	taken := func(id string) bool {
		return lo.ContainsBy(existing, func(p Patient) bool { return p.ID == id })
	}
	id := customID
	if id != "" {
		if taken(id) {
			return Patient{}, ErrPatientIDInUse
		}
	} else {
		id = s.ids.Next(taken)
	}

	now := s.now().UTC()
	p := Patient{
		ID:             id,
		Name:           f.name,
		DateOfBirth:    f.dob,
		Contact:        f.contact,
		MedicalHistory: f.history,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.patients.Add(ctx, p); err != nil {
		return Patient{}, err
	}
	s.logger.Info().Str("patient_id", p.ID).Msg("patient added")
	return p, nil
}

// UpdatePatient edits an existing patient in place. The ID never changes.
// An edit that would make the record collide with a different patient is
// rejected with *DuplicatePatientError.
func (s *Service) UpdatePatient(ctx context.Context, id string, in PatientInput) (Patient, error) {
	if err := s.policy.Authorize(ctx, auth.ActionPatientEdit); err != nil {
		return Patient{}, err
	}
	f, err := parsePatientInput(in)
	if err != nil {
		return Patient{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.patients.GetByID(ctx, id); err != nil {
		return Patient{}, err
	}
	existing, err := s.patients.List(ctx)
	if err != nil {
		return Patient{}, err
	}
	if dup, ok := lo.Find(existing, func(p Patient) bool {
		return p.ID != id && p.SameIdentity(f.name, f.dob)
	}); ok {
		return Patient{}, &DuplicatePatientError{Existing: dup}
	}

	now := s.now().UTC()
	updated, err := s.patients.Update(ctx, id, func(p *Patient) {
		p.Name = f.name
		p.DateOfBirth = f.dob
		p.Contact = f.contact
		p.MedicalHistory = f.history
		p.UpdatedAt = now
	})
	if err != nil {
		return Patient{}, err
	}
	s.logger.Info().Str("patient_id", id).Msg("patient updated")
	return updated, nil
}

// GetPatient returns the full record, including medical history.
func (s *Service) GetPatient(ctx context.Context, id string) (Patient, error) {
	if err := s.policy.Authorize(ctx, auth.ActionPatientView); err != nil {
		return Patient{}, err
	}
	return s.patients.GetByID(ctx, id)
}

// LookupPatient resolves a patient for other services without the view
// gate; callers only read the ID and display name.
func (s *Service) LookupPatient(ctx context.Context, id string) (Patient, error) {
	return s.patients.GetByID(ctx, id)
}

// RemovePatient deletes the patient. Appointments and billing records that
// reference the patient are left in place.
func (s *Service) RemovePatient(ctx context.Context, id string) error {
	if err := s.policy.Authorize(ctx, auth.ActionPatientDelete); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.patients.Remove(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("patient_id", id).Msg("patient removed")
	return nil
}

func (s *Service) ListPatients(ctx context.Context) ([]Patient, error) {
	return s.patients.List(ctx)
}

// SearchPatients returns patients whose field named by criterion contains
// term, case-insensitively. An empty term returns every patient.
func (s *Service) SearchPatients(ctx context.Context, criterion, term string) ([]Patient, error) {
	all, err := s.patients.List(ctx)
	if err != nil {
		return nil, err
	}
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return all, nil
	}
	var field func(Patient) string
	switch criterion {
	case SearchByID:
		field = func(p Patient) string { return p.ID }
	case SearchByName, "":
		field = func(p Patient) string { return p.Name }
	case SearchByContact:
		field = func(p Patient) string { return p.Contact }
	default:
		return nil, validation.Errorf("by", "unknown search criterion %q", criterion)
	}
	return lo.Filter(all, func(p Patient, _ int) bool {
		return strings.Contains(strings.ToLower(field(p)), term)
	}), nil
}

// -- Doctor --

func (s *Service) AddDoctor(ctx context.Context, in DoctorInput) (Doctor, error) {
	if err := s.policy.Authorize(ctx, auth.ActionDoctorManage); err != nil {
		return Doctor{}, err
	}
	d := Doctor{
		ID:             uuid.New(),
		Name:           validation.Clean(in.Name),
		Specialization: validation.Clean(in.Specialization),
		Contact:        validation.Clean(in.Contact),
		CreatedAt:      s.now().UTC(),
	}
	switch {
	case d.Name == "":
		return Doctor{}, validation.Required("name")
	case d.Specialization == "":
		return Doctor{}, validation.Required("specialization")
	case d.Contact == "":
		return Doctor{}, validation.Required("contact")
	}
	if err := s.doctors.Add(ctx, d); err != nil {
		return Doctor{}, err
	}
	s.logger.Info().Str("doctor_id", d.ID.String()).Msg("doctor added")
	return d, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context) ([]Doctor, error) {
	return s.doctors.List(ctx)
}

// RemoveDoctor deletes the doctor. Appointments keep the doctor's name.
func (s *Service) RemoveDoctor(ctx context.Context, id uuid.UUID) error {
	if err := s.policy.Authorize(ctx, auth.ActionDoctorManage); err != nil {
		return err
	}
	if err := s.doctors.Remove(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("doctor_id", id.String()).Msg("doctor removed")
	return nil
}

// IsDuplicate reports whether err is a duplicate-patient rejection and
// returns the existing record.
func IsDuplicate(err error) (Patient, bool) {
	var de *DuplicatePatientError
	if errors.As(err, &de) {
		return de.Existing, true
	}
	return Patient{}, false
}
