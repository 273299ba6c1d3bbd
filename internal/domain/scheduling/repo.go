package scheduling

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/store"
)

type AppointmentRepository interface {
	Add(ctx context.Context, a Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (Appointment, error)
	Remove(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]Appointment, error)
	Subscribe(fn store.Listener) func()
}
