package reporting

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/platform/apierr"
	"github.com/clinic/clinic/internal/platform/validation"
)

// Kind names a report.
type Kind string

const (
	KindMonthlyVisits       Kind = "monthly-visits"
	KindDoctorWorkload      Kind = "doctor-workload"
	KindMonthlyRevenue      Kind = "monthly-revenue"
	KindServiceDistribution Kind = "service-distribution"
	KindPatientHistory      Kind = "patient-history"
)

var ErrUnknownKind = fmt.Errorf("unknown report kind: %w", apierr.ErrNotFound)

// Definition describes a report kind.
type Definition struct {
	Kind        Kind     `json:"kind"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters"`
}

// Definitions lists the available reports.
var Definitions = []Definition{
	{
		Kind:        KindMonthlyVisits,
		Name:        "Monthly Patient Visits",
		Description: "Appointments per calendar month; every month in range is present",
		Parameters:  []string{"start", "end"},
	},
	{
		Kind:        KindDoctorWorkload,
		Name:        "Doctor Workload",
		Description: "Appointments per doctor",
		Parameters:  []string{"start", "end"},
	},
	{
		Kind:        KindMonthlyRevenue,
		Name:        "Monthly Revenue by Service",
		Description: "Billed amount per service per month, one series per service",
		Parameters:  []string{"start", "end"},
	},
	{
		Kind:        KindServiceDistribution,
		Name:        "Service Revenue Distribution",
		Description: "Total billed amount per service",
		Parameters:  []string{"start", "end"},
	},
	{
		Kind:        KindPatientHistory,
		Name:        "Individual Patient History",
		Description: "Monthly visits and expenses of one patient with totals and monthly averages",
		Parameters:  []string{"start", "end", "patient_id"},
	},
}

// Lookup finds the definition of kind.
func Lookup(kind Kind) (Definition, bool) {
	return lo.Find(Definitions, func(d Definition) bool { return d.Kind == kind })
}

// PatientOption is one entry of the patient selector.
type PatientOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// PatientOptions returns the selectable patients for the history report.
func (e *Engine) PatientOptions(ctx context.Context) ([]PatientOption, error) {
	patients, err := e.patients.List(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(patients, func(p identity.Patient, _ int) PatientOption {
		return PatientOption{ID: p.ID, Label: p.SelectorLabel()}
	}), nil
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	engine *Engine
}

// NewHandler creates a new reporting handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes registers the reporting API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/reports", h.ListReports)
	api.GET("/reports/:kind", h.GenerateReport)
}

// ListReports returns the report definitions and the patient selector.
func (h *Handler) ListReports(c echo.Context) error {
	options, err := h.engine.PatientOptions(c.Request().Context())
	if err != nil {
		return apierr.HTTP(err)
	}
	def := h.engine.DefaultRange()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"reports":  Definitions,
		"patients": options,
		"default_range": map[string]string{
			"start": def.Start.Format(validation.DateLayout),
			"end":   def.End.Format(validation.DateLayout),
		},
	})
}

// GenerateReport runs the report named by :kind over ?start= and ?end=.
// Without both bounds the default lookback range is used; with only one
// the range is invalid.
func (h *Handler) GenerateReport(c echo.Context) error {
	rng, err := h.engine.ResolveRange(c.QueryParam("start"), c.QueryParam("end"))
	if err != nil {
		return apierr.HTTP(err)
	}
	report, err := h.engine.Generate(c.Request().Context(), Request{
		Kind:      Kind(c.Param("kind")),
		Range:     rng,
		PatientID: c.QueryParam("patient_id"),
	})
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, report)
}

// ResolveRange parses optional YYYY-MM-DD bounds. With neither bound the
// default range is returned; a single bound is left for Validate to reject.
func (e *Engine) ResolveRange(start, end string) (Range, error) {
	if start == "" && end == "" {
		return e.DefaultRange(), nil
	}
	var r Range
	var err error
	if start != "" {
		if r.Start, err = validation.ParseDate(start); err != nil {
			return Range{}, validation.Wrap("start", fmt.Errorf("%w: %v", ErrInvalidRange, err))
		}
	}
	if end != "" {
		if r.End, err = validation.ParseDate(end); err != nil {
			return Range{}, validation.Wrap("end", fmt.Errorf("%w: %v", ErrInvalidRange, err))
		}
	}
	return r, nil
}
