package evaluation

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/scp/internal/domain/classification"
	"github.com/ehr/scp/internal/platform/auth"
	"github.com/ehr/scp/pkg/pagination"
)

// MethodResolver finds the questionnaire to score a submission with.
type MethodResolver interface {
	Method(ctx context.Context, ref string) (*classification.Method, error)
	MethodForUnit(ctx context.Context, unitID string) (*classification.Method, error)
}

type Handler struct {
	engine  *Engine
	methods MethodResolver
}

func NewHandler(engine *Engine, methods MethodResolver) *Handler {
	return &Handler{engine: engine, methods: methods}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("nurse", "supervisor"))
	readGroup.GET("/evaluations/:id/history", h.History)
	readGroup.GET("/units/:unitId/beds/:bedId/history", h.BedHistory)
	readGroup.POST("/evaluations/score", h.Score)

	writeGroup := api.Group("", auth.RequireRole("nurse", "supervisor"))
	writeGroup.POST("/units/:unitId/beds/:bedId/evaluations", h.Submit)
	writeGroup.PUT("/evaluations/:id", h.ConfirmOverwrite)
	writeGroup.POST("/evaluations/:id/release", h.Release)
}

type submitBody struct {
	MethodKey    string `json:"method_key"`
	Items        Items  `json:"items"`
	RecordNumber string `json:"record_number"`
}

type overwriteBody struct {
	UnitID       string `json:"unit_id"`
	BedID        string `json:"bed_id"`
	MethodKey    string `json:"method_key"`
	Items        Items  `json:"items"`
	RecordNumber string `json:"record_number"`
	Entry        string `json:"entry"`
}

type scoreBody struct {
	UnitID    string `json:"unit_id"`
	MethodKey string `json:"method_key"`
	Items     Items  `json:"items"`
}

type conflictResponse struct {
	Conflict          bool     `json:"conflict"`
	ExistingSessionID string   `json:"existing_session_id"`
	BedID             string   `json:"bed_id"`
	Existing          *Session `json:"existing,omitempty"`
}

type scoreResponse struct {
	TotalPoints float64 `json:"total_points"`
	ClassLabel  string  `json:"class_label"`
	Complete    bool    `json:"complete"`
}

func (h *Handler) Submit(c echo.Context) error {
	entry, err := ParseEntryPoint(c.QueryParam("entry"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var body submitBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	unitID := c.Param("unitId")

	method, err := h.resolveMethod(ctx, unitID, body.MethodKey)
	if err != nil {
		return err
	}

	out, err := h.engine.Submit(ctx, SubmitRequest{
		BedID:        c.Param("bedId"),
		UnitID:       unitID,
		Method:       method,
		Items:        body.Items,
		RecordNumber: body.RecordNumber,
		Author:       authorFromContext(ctx),
		Entry:        entry,
	})
	if err != nil {
		return toHTTPError(err)
	}
	if out.RequiresConfirmation() {
		return c.JSON(http.StatusConflict, conflictResponse{
			Conflict:          true,
			ExistingSessionID: out.Conflict.ExistingSessionID,
			BedID:             out.Conflict.BedID,
			Existing:          out.Conflict.Existing,
		})
	}
	return c.JSON(http.StatusCreated, out.Session)
}

func (h *Handler) ConfirmOverwrite(c echo.Context) error {
	var body overwriteBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	entry, err := ParseEntryPoint(body.Entry)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()

	method, err := h.resolveMethod(ctx, body.UnitID, body.MethodKey)
	if err != nil {
		return err
	}

	s, err := h.engine.ConfirmOverwrite(ctx, OverwriteRequest{
		SessionID:    c.Param("id"),
		UnitID:       body.UnitID,
		BedID:        body.BedID,
		Method:       method,
		Items:        body.Items,
		RecordNumber: body.RecordNumber,
		Author:       authorFromContext(ctx),
		Entry:        entry,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) Release(c echo.Context) error {
	if err := h.engine.Release(c.Request().Context(), c.QueryParam("unit_id"), c.Param("id")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Score(c echo.Context) error {
	var body scoreBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	method, err := h.resolveMethod(c.Request().Context(), body.UnitID, body.MethodKey)
	if err != nil {
		return err
	}
	total, class, complete := h.engine.Score(method, body.Items)
	return c.JSON(http.StatusOK, scoreResponse{TotalPoints: total, ClassLabel: class, Complete: complete})
}

func (h *Handler) History(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.engine.History(c.Request().Context(), c.Param("id"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) BedHistory(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.engine.BedHistory(c.Request().Context(), c.Param("unitId"), c.Param("bedId"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// resolveMethod prefers an explicit method key and falls back to the unit's
// configured method.
func (h *Handler) resolveMethod(ctx context.Context, unitID, methodKey string) (*classification.Method, error) {
	var (
		m   *classification.Method
		err error
	)
	switch {
	case strings.TrimSpace(methodKey) != "":
		m, err = h.methods.Method(ctx, methodKey)
	case strings.TrimSpace(unitID) != "":
		m, err = h.methods.MethodForUnit(ctx, unitID)
	default:
		return nil, echo.NewHTTPError(http.StatusBadRequest, "method_key or unit_id is required")
	}
	if errors.Is(err, classification.ErrNoMethod) {
		return nil, echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return m, nil
}

func authorFromContext(ctx context.Context) *Author {
	id := auth.UserIDFromContext(ctx)
	if id == "" {
		return nil
	}
	return &Author{ID: id, Name: auth.UserNameFromContext(ctx)}
}

func toHTTPError(err error) error {
	var ve *ValidationError
	var re *RemoteError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, ve.Error())
	case errors.Is(err, ErrInFlight):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &re):
		return echo.NewHTTPError(http.StatusBadGateway, re.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
