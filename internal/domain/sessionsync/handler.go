package sessionsync

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/scp/internal/platform/auth"
)

// ViewIDHeader carries the lease of the calling view.
const ViewIDHeader = "X-View-ID"

type Handler struct {
	registry *Registry
}

func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/units/:unitId", auth.RequireRole(auth.RoleNurse, auth.RoleSupervisor))
	g.POST("/views", h.OpenView)
	g.DELETE("/views/:viewId", h.CloseView)
	g.GET("/sessions", h.ListSessions)
	g.POST("/beds/:bedId/draft", h.BeginDraft)
	g.DELETE("/beds/:bedId/draft", h.EndDraft)
}

type openViewResponse struct {
	ViewID string `json:"view_id"`
}

func (h *Handler) OpenView(c echo.Context) error {
	viewID := h.registry.OpenView(c.Param("unitId"))
	return c.JSON(http.StatusCreated, openViewResponse{ViewID: viewID})
}

func (h *Handler) CloseView(c echo.Context) error {
	err := h.registry.CloseView(c.Param("unitId"), c.Param("viewId"))
	if errors.Is(err, ErrUnknownView) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListSessions(c echo.Context) error {
	unitID := c.Param("unitId")
	if viewID := c.Request().Header.Get(ViewIDHeader); viewID != "" {
		if err := h.registry.Touch(unitID, viewID); err != nil {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
	}

	s := h.registry.Unit(unitID)
	if refresh, _ := strconv.ParseBool(c.QueryParam("refresh")); refresh {
		if _, err := s.Refresh(c.Request().Context()); err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
	}
	return c.JSON(http.StatusOK, s.Snapshot())
}

func (h *Handler) BeginDraft(c echo.Context) error {
	h.registry.Unit(c.Param("unitId")).BeginDraft(c.Param("bedId"))
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) EndDraft(c echo.Context) error {
	h.registry.Unit(c.Param("unitId")).EndDraft(c.Param("bedId"))
	return c.NoContent(http.StatusNoContent)
}
