package billing

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/store"
)

type RecordRepository interface {
	Add(ctx context.Context, r Record) error
	GetByID(ctx context.Context, id uuid.UUID) (Record, error)
	Remove(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]Record, error)
	Subscribe(fn store.Listener) func()
}
