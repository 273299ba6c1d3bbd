package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/store"
)

type PatientRepository interface {
	Add(ctx context.Context, p Patient) error
	GetByID(ctx context.Context, id string) (Patient, error)
	Update(ctx context.Context, id string, mutate func(*Patient)) (Patient, error)
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]Patient, error)
	Subscribe(fn store.Listener) func()
}

type DoctorRepository interface {
	Add(ctx context.Context, d Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (Doctor, error)
	Remove(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]Doctor, error)
	Subscribe(fn store.Listener) func()
}
