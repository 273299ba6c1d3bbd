package identity

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/clinic/clinic/internal/platform/apierr"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients", h.ListPatients)
	api.POST("/patients", h.CreatePatient)
	api.GET("/patients/:id", h.GetPatient)
	api.PUT("/patients/:id", h.UpdatePatient)
	api.DELETE("/patients/:id", h.DeletePatient)

	api.GET("/doctors", h.ListDoctors)
	api.POST("/doctors", h.CreateDoctor)
	api.GET("/doctors/:id", h.GetDoctor)
	api.DELETE("/doctors/:id", h.DeleteDoctor)
}

// duplicateResponse is the 409 body for a rejected duplicate patient. The
// caller may follow up with PUT /patients/{existing.id}.
type duplicateResponse struct {
	Message  string         `json:"message"`
	Existing PatientSummary `json:"existing"`
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var in PatientInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.AddPatient(c.Request().Context(), in)
	if existing, ok := IsDuplicate(err); ok {
		return c.JSON(http.StatusConflict, duplicateResponse{Message: err.Error(), Existing: existing.Summary()})
	}
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, p.Detail())
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.GetPatient(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p.Detail())
}

// ListPatients returns patient summaries. With ?q= it filters by the
// criterion in ?by= (id, name or contact; name by default).
func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients, err := h.svc.SearchPatients(c.Request().Context(), c.QueryParam("by"), c.QueryParam("q"))
	if err != nil {
		return apierr.HTTP(err)
	}
	summaries := lo.Map(patients, func(p Patient, _ int) PatientSummary { return p.Summary() })
	return c.JSON(http.StatusOK, pagination.New(summaries, pg))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	var in PatientInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), c.Param("id"), in)
	if existing, ok := IsDuplicate(err); ok {
		return c.JSON(http.StatusConflict, duplicateResponse{Message: err.Error(), Existing: existing.Summary()})
	}
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p.Detail())
}

func (h *Handler) DeletePatient(c echo.Context) error {
	if err := h.svc.RemovePatient(c.Request().Context(), c.Param("id")); err != nil {
		return apierr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CreateDoctor(c echo.Context) error {
	var in DoctorInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.AddDoctor(c.Request().Context(), in)
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	doctors, err := h.svc.ListDoctors(c.Request().Context())
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.New(doctors, pg))
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.RemoveDoctor(c.Request().Context(), id); err != nil {
		return apierr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
