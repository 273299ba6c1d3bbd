package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/ids"
	"github.com/clinic/clinic/internal/platform/validation"
)

var testNow = time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, identity.Patient) {
	t.Helper()
	dir := identity.NewService(identity.NewPatientRepoMem(), identity.NewDoctorRepoMem(), ids.NewSequenceGenerator("P"), auth.AllowAll, zerolog.Nop())
	p, err := dir.AddPatient(context.Background(), identity.PatientInput{Name: "John Doe", DateOfBirth: "1980-01-01", Contact: "x"})
	if err != nil {
		t.Fatal(err)
	}
	svc := NewService(NewRecordRepoMem(), dir, auth.AllowAll, zerolog.Nop())
	svc.SetClock(func() time.Time { return testNow })
	return svc, p
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{"120", 120, false},
		{" 99.50 ", 99.5, false},
		{"0.01", 0.01, false},
		{"0", 0, true},
		{"-5", 0, true},
		{"abc", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: expected error=%v, got %v", tt.raw, tt.wantErr, err)
			continue
		}
		if err != nil && !validation.IsValidation(err) {
			t.Errorf("%q: expected validation error, got %v", tt.raw, err)
		}
		if got != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.raw, tt.want, got)
		}
	}
}

func TestAdd(t *testing.T) {
	svc, p := newTestService(t)
	r, err := svc.Add(context.Background(), RecordInput{PatientID: p.ID, Service: "Consultation", Amount: "120", Date: "2024-05-01"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.PatientName != "John Doe" || r.Amount != 120 {
		t.Errorf("unexpected record %+v", r)
	}
	all, _ := svc.List(context.Background(), "")
	if len(all) != 1 {
		t.Errorf("expected 1 record, got %d", len(all))
	}
	if _, err := svc.Get(context.Background(), r.ID); err != nil {
		t.Errorf("expected record retrievable by id, got %v", err)
	}
}

func TestAdd_Validation(t *testing.T) {
	svc, p := newTestService(t)
	tests := []struct {
		name  string
		in    RecordInput
		field string
	}{
		{"patient", RecordInput{Service: "X", Amount: "1", Date: "2024-05-01"}, "patient_id"},
		{"service", RecordInput{PatientID: p.ID, Amount: "1", Date: "2024-05-01"}, "service"},
		{"amount", RecordInput{PatientID: p.ID, Service: "X", Date: "2024-05-01"}, "amount"},
		{"date", RecordInput{PatientID: p.ID, Service: "X", Amount: "1"}, "date"},
		{"zero amount", RecordInput{PatientID: p.ID, Service: "X", Amount: "0", Date: "2024-05-01"}, "amount"},
		{"negative amount", RecordInput{PatientID: p.ID, Service: "X", Amount: "-10", Date: "2024-05-01"}, "amount"},
		{"text amount", RecordInput{PatientID: p.ID, Service: "X", Amount: "ten", Date: "2024-05-01"}, "amount"},
		{"future date", RecordInput{PatientID: p.ID, Service: "X", Amount: "1", Date: "2024-05-02"}, "date"},
		{"unknown patient", RecordInput{PatientID: "P9999", Service: "X", Amount: "1", Date: "2024-05-01"}, "patient_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Add(context.Background(), tt.in)
			var ve *validation.Error
			if !errors.As(err, &ve) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ve.Field)
			}
		})
	}
	all, _ := svc.List(context.Background(), "")
	if len(all) != 0 {
		t.Errorf("expected no records, got %d", len(all))
	}
}

func TestAdd_PastDate(t *testing.T) {
	svc, p := newTestService(t)
	if _, err := svc.Add(context.Background(), RecordInput{PatientID: p.ID, Service: "X", Amount: "1", Date: "2023-01-15"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDelete(t *testing.T) {
	svc, p := newTestService(t)
	r, _ := svc.Add(context.Background(), RecordInput{PatientID: p.ID, Service: "X", Amount: "1", Date: "2024-05-01"})
	if err := svc.Delete(context.Background(), r.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Delete(context.Background(), uuid.New()); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestAdd_Forbidden(t *testing.T) {
	svc, p := newTestService(t)
	svc.policy = auth.NewRolePolicy(auth.DefaultRoleGrants())
	ctx := auth.WithUser(context.Background(), "u", []string{auth.RolePhysician})
	_, err := svc.Add(ctx, RecordInput{PatientID: p.ID, Service: "X", Amount: "1", Date: "2024-05-01"})
	if !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}
