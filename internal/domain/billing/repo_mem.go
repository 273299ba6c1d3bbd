package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apierr"
	"github.com/clinic/clinic/internal/platform/store"
)

var ErrRecordNotFound = fmt.Errorf("billing record %w", apierr.ErrNotFound)

type recordRepoMem struct{ s *store.Store[Record] }

func NewRecordRepoMem() RecordRepository {
	return &recordRepoMem{s: store.New[Record]("billing")}
}

func recordByID(id uuid.UUID) func(Record) bool {
	return func(r Record) bool { return r.ID == id }
}

func (m *recordRepoMem) Add(_ context.Context, r Record) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	m.s.Add(r)
	return nil
}

func (m *recordRepoMem) GetByID(_ context.Context, id uuid.UUID) (Record, error) {
	r, ok := m.s.Find(recordByID(id))
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return r, nil
}

func (m *recordRepoMem) Remove(_ context.Context, id uuid.UUID) error {
	if _, ok := m.s.Remove(recordByID(id)); !ok {
		return ErrRecordNotFound
	}
	return nil
}

func (m *recordRepoMem) List(_ context.Context) ([]Record, error) {
	return m.s.All(), nil
}

func (m *recordRepoMem) Subscribe(fn store.Listener) func() { return m.s.Subscribe(fn) }
