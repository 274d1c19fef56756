package staffing

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/scp/internal/domain/evaluation"
	"github.com/ehr/scp/internal/platform/auth"
)

// SessionLister returns the active sessions of a unit.
type SessionLister interface {
	ActiveSessions(ctx context.Context, unitID string) ([]*evaluation.Session, error)
}

type Handler struct {
	svc      *Service
	sessions SessionLister
}

func NewHandler(svc *Service, sessions SessionLister) *Handler {
	return &Handler{svc: svc, sessions: sessions}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleNurse, auth.RoleSupervisor))
	readGroup.POST("/staffing/preview", h.Preview)
	readGroup.GET("/units/:unitId/staffing/census", h.Census)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleSupervisor))
	writeGroup.POST("/units/:unitId/staffing", h.Dimension)
	writeGroup.POST("/units/:unitId/staffing/save", h.Save)
	writeGroup.POST("/staffing/export", h.Export)
}

type censusResponse struct {
	UnitID        string   `json:"unit_id"`
	Counts        Counts   `json:"counts"`
	Unclassified  int      `json:"unclassified"`
	UnknownLabels []string `json:"unknown_labels,omitempty"`
}

type persistenceResponse struct {
	Message string  `json:"message"`
	Result  *Result `json:"result"`
}

func (h *Handler) Preview(c echo.Context) error {
	var p Parameters
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.Preview(p)
	if err != nil {
		return validationResponse(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Dimension(c echo.Context) error {
	var p Parameters
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	saved, err := h.svc.Dimension(c.Request().Context(), c.Param("unitId"), p)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, saved)
}

func (h *Handler) Save(c echo.Context) error {
	var r Result
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	saved, err := h.svc.Save(c.Request().Context(), c.Param("unitId"), &r)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, saved)
}

func (h *Handler) Export(c echo.Context) error {
	var r Result
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	data, err := ExportXLSX(&r)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", "dimensionamento-"+r.ComputedAt.Format("20060102")+".xlsx"))
	return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// Census counts the unit's active sessions per care level.
func (h *Handler) Census(c echo.Context) error {
	unitID := c.Param("unitId")
	list, err := h.sessions.ActiveSessions(c.Request().Context(), unitID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	resp := censusResponse{UnitID: unitID}
	var labels []string
	for _, s := range list {
		if !s.IsActive() || s.Unmatched {
			continue
		}
		if s.ClassLabel == "" {
			resp.Unclassified++
			continue
		}
		labels = append(labels, s.ClassLabel)
	}
	resp.Counts, resp.UnknownLabels = CensusFromClasses(labels)
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) errorResponse(c echo.Context, err error) error {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return c.JSON(http.StatusBadGateway, persistenceResponse{Message: pe.Error(), Result: pe.Result})
	}
	return validationResponse(c, err)
}

func validationResponse(c echo.Context, err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusUnprocessableEntity, ve)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
