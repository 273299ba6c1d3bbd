package reporting

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/validation"
)

// MonthLabelLayout formats month buckets for display.
const MonthLabelLayout = "Jan 2006"

var ErrInvalidRange = errors.New("invalid date range")

// Range is an inclusive span of civil dates.
type Range struct {
	Start time.Time
	End   time.Time
}

// Validate reports an unset bound or a start after the end.
func (r Range) Validate() error {
	switch {
	case r.Start.IsZero():
		return validation.Wrap("start", fmt.Errorf("%w: start date is required", ErrInvalidRange))
	case r.End.IsZero():
		return validation.Wrap("end", fmt.Errorf("%w: end date is required", ErrInvalidRange))
	case validation.Day(r.Start).After(validation.Day(r.End)):
		return validation.Wrap("start", fmt.Errorf("%w: start date must not be after end date", ErrInvalidRange))
	}
	return nil
}

// Contains reports whether the civil date of t lies within r.
func (r Range) Contains(t time.Time) bool {
	d := validation.Day(t)
	return !d.Before(validation.Day(r.Start)) && !d.After(validation.Day(r.End))
}

// Months returns the first day of every calendar month touched by r, in
// order.
func (r Range) Months() []time.Time {
	var months []time.Time
	last := monthOf(r.End)
	for m := monthOf(r.Start); !m.After(last); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}

func monthOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Point is one value in a series. Key is machine-readable (YYYY-MM for
// monthly buckets, the group name otherwise); Label is for display.
type Point struct {
	Key     string  `json:"key"`
	Label   string  `json:"label"`
	Value   float64 `json:"value"`
	Display string  `json:"display,omitempty"`
}

type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// HistorySummary holds the scalar figures of a patient history report.
// Averages divide by the number of months that have at least one entry.
type HistorySummary struct {
	PatientID         string  `json:"patient_id"`
	PatientName       string  `json:"patient_name,omitempty"`
	TotalVisits       int     `json:"total_visits"`
	TotalExpense      float64 `json:"total_expense"`
	AvgMonthlyVisits  float64 `json:"avg_monthly_visits"`
	AvgMonthlyExpense float64 `json:"avg_monthly_expense"`
}

// Request selects a report. PatientID is only read by KindPatientHistory.
type Request struct {
	Kind      Kind
	Range     Range
	PatientID string
}

// Report is a generated report.
type Report struct {
	Kind        Kind            `json:"kind"`
	Title       string          `json:"title"`
	Start       string          `json:"start"`
	End         string          `json:"end"`
	GeneratedAt time.Time       `json:"generated_at"`
	Series      []Series        `json:"series"`
	Summary     *HistorySummary `json:"summary,omitempty"`
}

// Engine recomputes reports from the repositories on every call.
type Engine struct {
	appts    scheduling.AppointmentRepository
	records  billing.RecordRepository
	patients identity.PatientRepository
	policy   auth.Policy
	lookback int
	now      func() time.Time
}

func NewEngine(appts scheduling.AppointmentRepository, records billing.RecordRepository, patients identity.PatientRepository, policy auth.Policy, lookbackMonths int) *Engine {
	if lookbackMonths <= 0 {
		lookbackMonths = 6
	}
	return &Engine{
		appts:    appts,
		records:  records,
		patients: patients,
		policy:   policy,
		lookback: lookbackMonths,
		now:      time.Now,
	}
}

// SetClock replaces the time source used for DefaultRange and timestamps.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// DefaultRange covers the configured number of months ending today.
func (e *Engine) DefaultRange() Range {
	end := validation.Day(e.now())
	return Range{Start: monthsBefore(end, e.lookback), End: end}
}

// monthsBefore steps back n calendar months, clamping the day to the end
// of the target month (Aug 31 minus six months is Feb 29, not Mar 2).
func monthsBefore(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month()-time.Month(n), 1, 0, 0, 0, 0, t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	return first.AddDate(0, 0, min(t.Day(), lastDay)-1)
}

// Generate validates req and computes the requested report. An invalid
// range yields ErrInvalidRange and no report.
func (e *Engine) Generate(ctx context.Context, req Request) (*Report, error) {
	if err := e.policy.Authorize(ctx, auth.ActionReportView); err != nil {
		return nil, err
	}
	def, ok := Lookup(req.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind)
	}
	if err := req.Range.Validate(); err != nil {
		return nil, err
	}

	report := &Report{
		Kind:        req.Kind,
		Title:       def.Name,
		Start:       req.Range.Start.Format(validation.DateLayout),
		End:         req.Range.End.Format(validation.DateLayout),
		GeneratedAt: e.now().UTC(),
	}

	var err error
	switch req.Kind {
	case KindMonthlyVisits:
		report.Series, err = e.monthlyVisits(ctx, req.Range)
	case KindDoctorWorkload:
		report.Series, err = e.doctorWorkload(ctx, req.Range)
	case KindMonthlyRevenue:
		report.Series, err = e.monthlyRevenue(ctx, req.Range)
	case KindServiceDistribution:
		report.Series, err = e.serviceDistribution(ctx, req.Range)
	case KindPatientHistory:
		report.Series, report.Summary, err = e.patientHistory(ctx, req.Range, req.PatientID)
		if report.Summary != nil && report.Summary.PatientName != "" {
			report.Title = fmt.Sprintf("%s: %s", def.Name, report.Summary.PatientName)
		}
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (e *Engine) appointmentsIn(ctx context.Context, r Range) ([]scheduling.Appointment, error) {
	all, err := e.appts.List(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(all, func(a scheduling.Appointment, _ int) bool { return r.Contains(a.Date) }), nil
}

func (e *Engine) recordsIn(ctx context.Context, r Range) ([]billing.Record, error) {
	all, err := e.records.List(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(all, func(b billing.Record, _ int) bool { return r.Contains(b.Date) }), nil
}

func monthPoint(m time.Time, v float64) Point {
	return Point{Key: m.Format("2006-01"), Label: m.Format(MonthLabelLayout), Value: v}
}

// monthlyVisits emits one point per calendar month in range, zero when the
// month has no appointments.
func (e *Engine) monthlyVisits(ctx context.Context, r Range) ([]Series, error) {
	appts, err := e.appointmentsIn(ctx, r)
	if err != nil {
		return nil, err
	}
	byMonth := lo.GroupBy(appts, func(a scheduling.Appointment) time.Time { return monthOf(a.Date) })
	points := lo.Map(r.Months(), func(m time.Time, _ int) Point {
		return monthPoint(m, float64(len(byMonth[m])))
	})
	return []Series{{Name: "Visits", Points: points}}, nil
}

// doctorWorkload counts appointments per doctor display name in order of
// first appearance.
func (e *Engine) doctorWorkload(ctx context.Context, r Range) ([]Series, error) {
	appts, err := e.appointmentsIn(ctx, r)
	if err != nil {
		return nil, err
	}
	doctorName := func(a scheduling.Appointment) string { return a.DoctorName }
	byDoctor := lo.GroupBy(appts, doctorName)
	points := lo.Map(lo.Uniq(lo.Map(appts, func(a scheduling.Appointment, _ int) string { return doctorName(a) })),
		func(name string, _ int) Point {
			n := len(byDoctor[name])
			return Point{Key: name, Label: name, Value: float64(n), Display: fmt.Sprintf("%s (%d appointments)", name, n)}
		})
	return []Series{{Name: "Appointments", Points: points}}, nil
}

// monthlyRevenue emits one sparse series per service, each holding the
// months that service billed, in chronological order.
func (e *Engine) monthlyRevenue(ctx context.Context, r Range) ([]Series, error) {
	records, err := e.recordsIn(ctx, r)
	if err != nil {
		return nil, err
	}
	byService := lo.GroupBy(records, func(b billing.Record) string { return b.Service })
	services := lo.Uniq(lo.Map(records, func(b billing.Record, _ int) string { return b.Service }))
	return lo.Map(services, func(service string, _ int) Series {
		return Series{Name: service, Points: monthlySums(byService[service], func(b billing.Record) time.Time { return b.Date }, func(b billing.Record) float64 { return b.Amount })}
	}), nil
}

// serviceDistribution totals billed amounts per service.
func (e *Engine) serviceDistribution(ctx context.Context, r Range) ([]Series, error) {
	records, err := e.recordsIn(ctx, r)
	if err != nil {
		return nil, err
	}
	byService := lo.GroupBy(records, func(b billing.Record) string { return b.Service })
	services := lo.Uniq(lo.Map(records, func(b billing.Record, _ int) string { return b.Service }))
	points := lo.Map(services, func(service string, _ int) Point {
		total := lo.SumBy(byService[service], func(b billing.Record) float64 { return b.Amount })
		return Point{Key: service, Label: service, Value: total, Display: fmt.Sprintf("%s ($%.2f)", service, total)}
	})
	return []Series{{Name: "Revenue", Points: points}}, nil
}

// patientHistory restricts visits and expenses to one patient and emits a
// sparse monthly series for each plus the summary scalars.
func (e *Engine) patientHistory(ctx context.Context, r Range, patientID string) ([]Series, *HistorySummary, error) {
	if validation.Blank(patientID) {
		return nil, nil, validation.Required("patient_id")
	}
	appts, err := e.appointmentsIn(ctx, r)
	if err != nil {
		return nil, nil, err
	}
	records, err := e.recordsIn(ctx, r)
	if err != nil {
		return nil, nil, err
	}
	visits := lo.Filter(appts, func(a scheduling.Appointment, _ int) bool { return a.PatientID == patientID })
	charges := lo.Filter(records, func(b billing.Record, _ int) bool { return b.PatientID == patientID })

	visitPoints := monthlySums(visits, func(a scheduling.Appointment) time.Time { return a.Date }, func(scheduling.Appointment) float64 { return 1 })
	expensePoints := monthlySums(charges, func(b billing.Record) time.Time { return b.Date }, func(b billing.Record) float64 { return b.Amount })

	summary := &HistorySummary{
		PatientID:         patientID,
		TotalVisits:       len(visits),
		TotalExpense:      lo.SumBy(charges, func(b billing.Record) float64 { return b.Amount }),
		AvgMonthlyVisits:  average(visitPoints),
		AvgMonthlyExpense: average(expensePoints),
	}
	if p, err := e.patients.GetByID(ctx, patientID); err == nil {
		summary.PatientName = p.Name
	} else if !errors.Is(err, identity.ErrPatientNotFound) {
		return nil, nil, err
	}

	return []Series{
		{Name: "Visits", Points: visitPoints},
		{Name: "Expenses", Points: expensePoints},
	}, summary, nil
}

// monthlySums buckets items by calendar month and sums value per bucket.
// Only populated months appear, oldest first.
func monthlySums[T any](items []T, date func(T) time.Time, value func(T) float64) []Point {
	byMonth := lo.GroupBy(items, func(item T) time.Time { return monthOf(date(item)) })
	months := lo.Keys(byMonth)
	slices.SortFunc(months, func(a, b time.Time) int { return a.Compare(b) })
	return lo.Map(months, func(m time.Time, _ int) Point {
		return monthPoint(m, lo.SumBy(byMonth[m], value))
	})
}

// average is the mean over the given populated months, 0 when none are.
func average(points []Point) float64 {
	if len(points) == 0 {
		return 0
	}
	return lo.SumBy(points, func(p Point) float64 { return p.Value }) / float64(len(points))
}
