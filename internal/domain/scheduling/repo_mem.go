package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apierr"
	"github.com/clinic/clinic/internal/platform/store"
)

var ErrAppointmentNotFound = fmt.Errorf("appointment %w", apierr.ErrNotFound)

type appointmentRepoMem struct{ s *store.Store[Appointment] }

func NewAppointmentRepoMem() AppointmentRepository {
	return &appointmentRepoMem{s: store.New[Appointment]("appointments")}
}

func appointmentByID(id uuid.UUID) func(Appointment) bool {
	return func(a Appointment) bool { return a.ID == id }
}

func (r *appointmentRepoMem) Add(_ context.Context, a Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.s.Add(a)
	return nil
}

func (r *appointmentRepoMem) GetByID(_ context.Context, id uuid.UUID) (Appointment, error) {
	a, ok := r.s.Find(appointmentByID(id))
	if !ok {
		return Appointment{}, ErrAppointmentNotFound
	}
	return a, nil
}

func (r *appointmentRepoMem) Remove(_ context.Context, id uuid.UUID) error {
	if _, ok := r.s.Remove(appointmentByID(id)); !ok {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *appointmentRepoMem) List(_ context.Context) ([]Appointment, error) {
	return r.s.All(), nil
}

func (r *appointmentRepoMem) Subscribe(fn store.Listener) func() { return r.s.Subscribe(fn) }
