package adherence

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/adherence/adherence/internal/fragility"
	"github.com/adherence/adherence/internal/measure"
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
	readGroup := api.Group("", auth.RequireRole("admin", "pharmacist", "care-coordinator"))
	readGroup.GET("/adherence/worklist", h.Worklist)
	readGroup.GET("/adherence/reviews/:id", h.GetReview)
	readGroup.GET("/patients/:patientId/adherence", h.ListByPatient)

	writeGroup := api.Group("", auth.RequireRole("admin", "pharmacist"))
	writeGroup.POST("/adherence/recalculate", h.RecalculateAll)
	writeGroup.POST("/patients/:patientId/adherence/recalculate", h.RecalculatePatient)

	fhirRead := fhirGroup.Group("", auth.RequireRole("admin", "pharmacist", "care-coordinator"))
	fhirRead.GET("/Observation/:id", h.GetReviewFHIR)
}

type recalcRequest struct {
	Year        int            `json:"year"`
	MeasureType measure.Type   `json:"measure_type,omitempty"`
	CurrentDate *time.Time     `json:"current_date,omitempty"`
	Refills     *int           `json:"refills_remaining,omitempty"`
	NewPatient  *bool          `json:"is_new_patient,omitempty"`
	Q4Override  *bool          `json:"q4_override,omitempty"`
}

func (req *recalcRequest) options() RecalcOptions {
	opts := RecalcOptions{
		RefillsRemaining: req.Refills,
		IsNewPatient:     req.NewPatient,
		Q4Override:       req.Q4Override,
	}
	if req.CurrentDate != nil {
		opts.CurrentDate = *req.CurrentDate
	}
	return opts
}

func (req *recalcRequest) resolveYear() int {
	if req.Year != 0 {
		return req.Year
	}
	if req.CurrentDate != nil {
		return req.CurrentDate.Year()
	}
	return time.Now().UTC().Year()
}

func (h *Handler) RecalculateAll(c echo.Context) error {
	var req recalcRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	summary, err := h.svc.RecalculateAll(c.Request().Context(), req.resolveYear(), req.options())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) RecalculatePatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req recalcRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	measures := measure.All()
	if req.MeasureType != "" {
		if !req.MeasureType.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid measure_type")
		}
		measures = []measure.Type{req.MeasureType}
	}

	year := req.resolveYear()
	reviews := make([]*Review, 0, len(measures))
	for _, m := range measures {
		rv, err := h.svc.Recalculate(c.Request().Context(), patientID, m, year, req.options())
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		reviews = append(reviews, rv)
	}
	return c.JSON(http.StatusOK, reviews)
}

func (h *Handler) GetReview(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rv, err := h.svc.GetReview(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "review not found")
	}
	return c.JSON(http.StatusOK, rv)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	year, _ := strconv.Atoi(c.QueryParam("year"))
	if year == 0 {
		year = time.Now().UTC().Year()
	}
	reviews, err := h.svc.ListByPatient(c.Request().Context(), patientID, year)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, reviews)
}

func (h *Handler) Worklist(c echo.Context) error {
	pg := pagination.FromContext(c)

	filter := WorklistFilter{
		MeasureType: measure.Type(c.QueryParam("measure")),
		Tier:        fragility.Tier(c.QueryParam("tier")),
		Urgency:     fragility.Urgency(c.QueryParam("urgency")),
	}
	filter.Year, _ = strconv.Atoi(c.QueryParam("year"))
	filter.MinPriority, _ = strconv.Atoi(c.QueryParam("min_priority"))

	if filter.MeasureType != "" && !filter.MeasureType.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid measure")
	}
	if filter.Tier != "" && !filter.Tier.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tier")
	}

	items, total, err := h.svc.Worklist(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetReviewFHIR(c echo.Context) error {
	rv, err := h.svc.GetReviewByFHIRID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Observation", c.Param("id")))
	}
	return c.JSON(http.StatusOK, rv.ToFHIR())
}
