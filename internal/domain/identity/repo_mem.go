package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apierr"
	"github.com/clinic/clinic/internal/platform/store"
)

var (
	ErrPatientNotFound = fmt.Errorf("patient %w", apierr.ErrNotFound)
	ErrDoctorNotFound  = fmt.Errorf("doctor %w", apierr.ErrNotFound)
)

// =========== Patient Repository ===========

type patientRepoMem struct{ s *store.Store[Patient] }

func NewPatientRepoMem() PatientRepository {
	return &patientRepoMem{s: store.New[Patient]("patients")}
}

func patientByID(id string) func(Patient) bool {
	return func(p Patient) bool { return p.ID == id }
}

func (r *patientRepoMem) Add(_ context.Context, p Patient) error {
	if p.ID == "" {
		return errors.New("patient id is empty")
	}
	r.s.Add(p)
	return nil
}

func (r *patientRepoMem) GetByID(_ context.Context, id string) (Patient, error) {
	p, ok := r.s.Find(patientByID(id))
	if !ok {
		return Patient{}, ErrPatientNotFound
	}
	return p, nil
}

func (r *patientRepoMem) Update(_ context.Context, id string, mutate func(*Patient)) (Patient, error) {
	p, ok := r.s.Update(patientByID(id), mutate)
	if !ok {
		return Patient{}, ErrPatientNotFound
	}
	return p, nil
}

func (r *patientRepoMem) Remove(_ context.Context, id string) error {
	if _, ok := r.s.Remove(patientByID(id)); !ok {
		return ErrPatientNotFound
	}
	return nil
}

func (r *patientRepoMem) List(_ context.Context) ([]Patient, error) {
	return r.s.All(), nil
}

func (r *patientRepoMem) Subscribe(fn store.Listener) func() { return r.s.Subscribe(fn) }

// =========== Doctor Repository ===========

type doctorRepoMem struct{ s *store.Store[Doctor] }

func NewDoctorRepoMem() DoctorRepository {
	return &doctorRepoMem{s: store.New[Doctor]("doctors")}
}

func doctorByID(id uuid.UUID) func(Doctor) bool {
	return func(d Doctor) bool { return d.ID == id }
}

func (r *doctorRepoMem) Add(_ context.Context, d Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	r.s.Add(d)
	return nil
}

func (r *doctorRepoMem) GetByID(_ context.Context, id uuid.UUID) (Doctor, error) {
	d, ok := r.s.Find(doctorByID(id))
	if !ok {
		return Doctor{}, ErrDoctorNotFound
	}
	return d, nil
}

func (r *doctorRepoMem) Remove(_ context.Context, id uuid.UUID) error {
	if _, ok := r.s.Remove(doctorByID(id)); !ok {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *doctorRepoMem) List(_ context.Context) ([]Doctor, error) {
	return r.s.All(), nil
}

func (r *doctorRepoMem) Subscribe(fn store.Listener) func() { return r.s.Subscribe(fn) }
