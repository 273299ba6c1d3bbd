package digest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/reporting"
)

type fakeEngine struct {
	mu       sync.Mutex
	requests []reporting.Request
	users    []string
	fail     reporting.Kind
}

func (f *fakeEngine) DefaultRange() reporting.Range {
	return reporting.Range{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeEngine) Generate(ctx context.Context, req reporting.Request) (*reporting.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.users = append(f.users, auth.UserIDFromContext(ctx))
	if req.Kind == f.fail {
		return nil, errors.New("boom")
	}
	return &reporting.Report{
		Kind:  req.Kind,
		Start: "2024-01-01",
		End:   "2024-02-29",
		Series: []reporting.Series{{Name: "Visits", Points: []reporting.Point{
			{Key: "2024-01", Label: "Jan 2024", Value: 3},
			{Key: "2024-02", Label: "Feb 2024", Value: 5},
		}}},
	}, nil
}

func TestRun_GeneratesEachKindOverDefaultRange(t *testing.T) {
	engine := &fakeEngine{}
	var buf bytes.Buffer
	d := New(engine, zerolog.New(&buf))

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(engine.requests) != len(Kinds) {
		t.Fatalf("expected %d reports, got %d", len(Kinds), len(engine.requests))
	}
	for i, req := range engine.requests {
		if req.Kind != Kinds[i] {
			t.Errorf("request %d: expected %s, got %s", i, Kinds[i], req.Kind)
		}
		if req.Range != engine.DefaultRange() {
			t.Errorf("request %d: expected default range, got %+v", i, req.Range)
		}
		if engine.users[i] != DigestUser {
			t.Errorf("request %d: expected user %q, got %q", i, DigestUser, engine.users[i])
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2*len(Kinds) {
		t.Fatalf("expected %d log lines, got %d: %s", 2*len(Kinds), len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid log line: %v", err)
	}
	if entry["component"] != "digest" || entry["label"] != "Jan 2024" || entry["value"] != float64(3) {
		t.Errorf("unexpected log entry %v", entry)
	}
}

func TestRun_ContinuesAfterFailure(t *testing.T) {
	engine := &fakeEngine{fail: reporting.KindMonthlyVisits}
	d := New(engine, zerolog.Nop())

	err := d.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), string(reporting.KindMonthlyVisits)) {
		t.Errorf("expected error naming the failed report, got %v", err)
	}
	if len(engine.requests) != len(Kinds) {
		t.Errorf("expected every report attempted, got %d", len(engine.requests))
	}
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"0 7 * * 1", false},
		{"@daily", false},
		{"@every 1h", false},
		{"not a schedule", true},
		{"61 * * * *", true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			_, err := ParseSchedule(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSchedule(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
		})
	}
}

func TestStart(t *testing.T) {
	d := New(&fakeEngine{}, zerolog.Nop())
	if err := d.Start("@hourly"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer d.Stop()

	entries := d.cron.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 scheduled entry, got %d", len(entries))
	}
}

func TestStart_InvalidSpec(t *testing.T) {
	d := New(&fakeEngine{}, zerolog.Nop())
	if err := d.Start("whenever"); err == nil {
		t.Error("expected error for invalid spec")
	}
	if len(d.cron.Entries()) != 0 {
		t.Error("invalid spec must not be scheduled")
	}
}
