package scheduling

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/platform/apierr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/validation"
)

var ErrSlotTaken = fmt.Errorf("time slot already booked: %w", apierr.ErrConflict)

// Directory resolves the patient and doctor an appointment references.
// *identity.Service satisfies it.
type Directory interface {
	LookupPatient(ctx context.Context, id string) (identity.Patient, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (identity.Doctor, error)
}

type Service struct {
	mu     sync.Mutex
	appts  AppointmentRepository
	dir    Directory
	policy auth.Policy
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(appts AppointmentRepository, dir Directory, policy auth.Policy, logger zerolog.Logger) *Service {
	return &Service{
		appts:  appts,
		dir:    dir,
		policy: policy,
		logger: logger.With().Str("component", "scheduling").Logger(),
		now:    time.Now,
	}
}

// SetClock replaces the time source that defines "today".
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Schedule validates in and books the appointment. The date may not be
// before today and the doctor's slot must be free.
func (s *Service) Schedule(ctx context.Context, in AppointmentInput) (Appointment, error) {
	if err := s.policy.Authorize(ctx, auth.ActionAppointment); err != nil {
		return Appointment{}, err
	}
	switch {
	case validation.Blank(in.PatientID):
		return Appointment{}, validation.Required("patient_id")
	case validation.Blank(in.DoctorID):
		return Appointment{}, validation.Required("doctor_id")
	case validation.Blank(in.Date):
		return Appointment{}, validation.Required("date")
	case validation.Blank(in.Time):
		return Appointment{}, validation.Required("time")
	}

	date, err := validation.ParseDate(in.Date)
	if err != nil {
		return Appointment{}, validation.Errorf("date", "%s", err.Error())
	}
	if date.Before(validation.Day(s.now())) {
		return Appointment{}, validation.Errorf("date", "appointment date cannot be in the past")
	}
	slot := strings.TrimSpace(in.Time)
	if !IsSlot(slot) {
		return Appointment{}, validation.Errorf("time", "%q is not a bookable time slot", slot)
	}

	patient, err := s.dir.LookupPatient(ctx, strings.TrimSpace(in.PatientID))
	if err != nil {
		return Appointment{}, validation.Errorf("patient_id", "unknown patient %q", in.PatientID)
	}
	doctorID, err := uuid.Parse(strings.TrimSpace(in.DoctorID))
	if err != nil {
		return Appointment{}, validation.Errorf("doctor_id", "invalid doctor id")
	}
	doctor, err := s.dir.GetDoctor(ctx, doctorID)
	if err != nil {
		return Appointment{}, validation.Errorf("doctor_id", "unknown doctor %q", in.DoctorID)
	}

	a, err := s.book(ctx, patient, doctor, date, slot)
	if err != nil {
		return Appointment{}, err
	}
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("patient_id", a.PatientID).
		Str("doctor", a.DoctorName).
		Str("date", in.Date).
		Str("time", slot).
		Msg("appointment scheduled")
	return a, nil
}

// Backfill records an appointment that already took place. Only past dates
// are accepted; the slot must still be free for the doctor.
func (s *Service) Backfill(ctx context.Context, patient identity.Patient, doctor identity.Doctor, date time.Time, slot string) (Appointment, error) {
	if err := s.policy.Authorize(ctx, auth.ActionAppointment); err != nil {
		return Appointment{}, err
	}
	date = validation.Day(date)
	if !date.Before(validation.Day(s.now())) {
		return Appointment{}, validation.Errorf("date", "backfilled appointment must be in the past")
	}
	if !IsSlot(slot) {
		return Appointment{}, validation.Errorf("time", "%q is not a bookable time slot", slot)
	}
	return s.book(ctx, patient, doctor, date, slot)
}

// book runs the slot check and the insert under the service mutex.
func (s *Service) book(ctx context.Context, patient identity.Patient, doctor identity.Doctor, date time.Time, slot string) (Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.appts.List(ctx)
	if err != nil {
		return Appointment{}, err
	}
	if lo.ContainsBy(existing, func(a Appointment) bool { return a.Occupies(doctor.Name, date, slot) }) {
		return Appointment{}, ErrSlotTaken
	}

	a := Appointment{
		ID:          uuid.New(),
		PatientID:   patient.ID,
		PatientName: patient.Name,
		DoctorID:    doctor.ID,
		DoctorName:  doctor.Name,
		Date:        date,
		Time:        slot,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.appts.Add(ctx, a); err != nil {
		return Appointment{}, err
	}
	return a, nil
}

// Cancel removes the appointment.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	if err := s.policy.Authorize(ctx, auth.ActionAppointment); err != nil {
		return err
	}
	if err := s.appts.Remove(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("appointment_id", id.String()).Msg("appointment cancelled")
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Appointment, error) {
	return s.appts.GetByID(ctx, id)
}

// List returns appointments in booking order, optionally restricted to one
// patient.
func (s *Service) List(ctx context.Context, patientID string) ([]Appointment, error) {
	all, err := s.appts.List(ctx)
	if err != nil {
		return nil, err
	}
	if patientID == "" {
		return all, nil
	}
	return lo.Filter(all, func(a Appointment, _ int) bool { return a.PatientID == patientID }), nil
}

// AvailableSlots returns the time slots the doctor has free on date.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	doctor, err := s.dir.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	all, err := s.appts.List(ctx)
	if err != nil {
		return nil, err
	}
	date = validation.Day(date)
	return lo.Reject(TimeSlots(), func(slot string, _ int) bool {
		return lo.ContainsBy(all, func(a Appointment) bool { return a.Occupies(doctor.Name, date, slot) })
	}), nil
}
