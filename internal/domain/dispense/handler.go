package dispense

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/adherence/adherence/internal/platform/auth"
	"github.com/adherence/adherence/internal/platform/fhir"
	"github.com/adherence/adherence/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	// Read endpoints
	readGroup := api.Group("", auth.RequireRole("admin", "pharmacist", "care-coordinator"))
	readGroup.GET("/dispenses", h.List)
	readGroup.GET("/dispenses/:id", h.Get)
	readGroup.GET("/patients/:patientId/dispenses", h.ListByPatient)

	// Write endpoints
	writeGroup := api.Group("", auth.RequireRole("admin", "pharmacist"))
	writeGroup.POST("/dispenses", h.Create)
	writeGroup.PUT("/dispenses/:id", h.Update)
	writeGroup.DELETE("/dispenses/:id", h.Delete)

	// FHIR endpoints
	fhirRead := fhirGroup.Group("", auth.RequireRole("admin", "pharmacist", "care-coordinator"))
	fhirRead.GET("/MedicationDispense", h.SearchFHIR)
	fhirRead.GET("/MedicationDispense/:id", h.GetFHIR)
	fhirRead.POST("/MedicationDispense/_search", h.SearchFHIR)
}

func (h *Handler) Create(c echo.Context) error {
	var md MedicationDispense
	if err := c.Bind(&md); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &md); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, md)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	md, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "dispense not found")
	}
	return c.JSON(http.StatusOK, md)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, k := range []string{"patient", "status", "code", "measure", "whenhandedover"} {
		if v := c.QueryParam(k); v != "" {
			params[k] = v
		}
	}
	items, total, err := h.svc.Search(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var md MedicationDispense
	if err := c.Bind(&md); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	md.ID = id
	if err := h.svc.Update(c.Request().Context(), &md); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, md)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SearchFHIR(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, k := range []string{"patient", "status", "code", "whenhandedover"} {
		if v := c.QueryParam(k); v != "" {
			params[k] = v
		}
	}
	items, total, err := h.svc.Search(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	resources := make([]interface{}, len(items))
	for i, item := range items {
		resources[i] = item.ToFHIR()
	}
	links := pg.FHIRLinks("/fhir/MedicationDispense", total)
	bundleLinks := make([]fhir.BundleLink, len(links))
	for i, l := range links {
		bundleLinks[i] = fhir.BundleLink{Relation: l.Relation, URL: l.URL}
	}
	return c.JSON(http.StatusOK, fhir.NewSearchBundle(resources, total, bundleLinks))
}

func (h *Handler) GetFHIR(c echo.Context) error {
	md, err := h.svc.GetByFHIRID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("MedicationDispense", c.Param("id")))
	}
	return c.JSON(http.StatusOK, md.ToFHIR())
}
