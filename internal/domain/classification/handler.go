package classification

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/scp/internal/platform/auth"
)

type Handler struct {
	resolver *Resolver
}

func NewHandler(resolver *Resolver) *Handler {
	return &Handler{resolver: resolver}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("nurse", "supervisor"))
	readGroup.GET("/classification-methods/:ref", h.GetMethod)
	readGroup.GET("/units/:unitId/classification-method", h.GetUnitMethod)
}

func (h *Handler) GetMethod(c echo.Context) error {
	m, err := h.resolver.Method(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "classification method not found")
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) GetUnitMethod(c echo.Context) error {
	unitID := c.Param("unitId")
	if unitID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "unit id is required")
	}
	m, err := h.resolver.MethodForUnit(c.Request().Context(), unitID)
	if errors.Is(err, ErrNoMethod) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, m)
}
