package staffing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/scp/internal/domain/evaluation"
)

type mockLister struct {
	sessions []*evaluation.Session
	err      error
}

func (m *mockLister) ActiveSessions(_ context.Context, _ string) ([]*evaluation.Session, error) {
	return m.sessions, m.err
}

const scenarioCBody = `{
	"nurse_name": "Ana Lima",
	"registration_number": "COREN-123",
	"safety_index": 15,
	"restricted": "nao",
	"days_per_week": 7,
	"nurse_weekly_hours": 36,
	"technician_weekly_hours": 36,
	"beds": 20,
	"occupancy_rate": 80,
	"counts": {"minimal": 10, "intermediate": 5}
}`

func newTestHandler() (*Handler, *mockSaver, *mockLister, *echo.Echo) {
	saver := newMockSaver()
	lister := &mockLister{}
	return NewHandler(newTestService(saver), lister), saver, lister, echo.New()
}

func jsonContext(e *echo.Echo, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_Preview(t *testing.T) {
	h, saver, _, e := newTestHandler()
	c, rec := jsonContext(e, scenarioCBody)
	if err := h.Preview(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var r Result
	if err := json.Unmarshal(rec.Body.Bytes(), &r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.NurseQuota != 5.17 || r.TechnicianQuota != 10.48 {
		t.Errorf("unexpected quotas %v/%v", r.NurseQuota, r.TechnicianQuota)
	}
	if saver.calls != 0 {
		t.Error("preview must not save")
	}
}

func TestHandler_Preview_Invalid(t *testing.T) {
	h, _, _, e := newTestHandler()
	c, rec := jsonContext(e, `{"restricted": "sim"}`)
	if err := h.Preview(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var ve ValidationError
	if err := json.Unmarshal(rec.Body.Bytes(), &ve); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ve.Fields) == 0 {
		t.Error("expected failing fields in the body")
	}
}

func TestHandler_Dimension(t *testing.T) {
	h, saver, _, e := newTestHandler()
	c, rec := jsonContext(e, scenarioCBody)
	c.SetParamNames("unitId")
	c.SetParamValues("u1")
	if err := h.Dimension(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if saver.calls != 1 {
		t.Errorf("expected 1 save, got %d", saver.calls)
	}
}

func TestHandler_Dimension_SaveFails(t *testing.T) {
	h, saver, _, e := newTestHandler()
	saver.fail = 1
	c, rec := jsonContext(e, scenarioCBody)
	c.SetParamNames("unitId")
	c.SetParamValues("u1")
	if err := h.Dimension(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var resp persistenceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Result == nil || resp.Result.QP != 15.65 {
		t.Fatalf("expected the computed result for a retry, got %+v", resp.Result)
	}

	body, _ := json.Marshal(resp.Result)
	c, rec = jsonContext(e, string(body))
	c.SetParamNames("unitId")
	c.SetParamValues("u1")
	if err := h.Save(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201 on retry, got %d", rec.Code)
	}
}

func TestHandler_Save_IgnoresTamperedFigures(t *testing.T) {
	h, saver, _, e := newTestHandler()
	r, err := h.svc.Preview(scenarioC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.QP = 42
	body, _ := json.Marshal(r)

	c, rec := jsonContext(e, string(body))
	c.SetParamNames("unitId")
	c.SetParamValues("u1")
	if err := h.Save(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var saved Saved
	if err := json.Unmarshal(rec.Body.Bytes(), &saved); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if saved.Result.QP != 15.65 || saver.saved[saved.ID].QP != 15.65 {
		t.Errorf("expected the recomputed qp 15.65, got %v", saved.Result.QP)
	}
}

func TestHandler_Census(t *testing.T) {
	h, _, lister, e := newTestHandler()
	lister.sessions = []*evaluation.Session{
		{ID: "s1", BedID: "b1", Status: evaluation.StatusActive, ClassLabel: "MINIMOS"},
		{ID: "s2", BedID: "b2", Status: evaluation.StatusActive, ClassLabel: "INTENSIVOS"},
		{ID: "s3", BedID: "b3", Status: evaluation.StatusActive},
		{ID: "s4", Status: evaluation.StatusActive, ClassLabel: "MINIMOS", Unmatched: true},
		{ID: "s5", BedID: "b5", Status: evaluation.StatusExpired, ClassLabel: "MINIMOS"},
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("unitId")
	c.SetParamValues("u1")
	if err := h.Census(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp censusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Counts != (Counts{Minimal: 1, Intensive: 1}) {
		t.Errorf("unexpected counts %+v", resp.Counts)
	}
	if resp.Unclassified != 1 {
		t.Errorf("expected 1 unclassified, got %d", resp.Unclassified)
	}
}

func TestHandler_Census_UpstreamDown(t *testing.T) {
	h, _, lister, e := newTestHandler()
	lister.err = errors.New("timeout")
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("unitId")
	c.SetParamValues("u1")
	err := h.Census(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %v", err)
	}
}

func TestHandler_Export(t *testing.T) {
	h, _, _, e := newTestHandler()
	r, _ := newTestEngine().Compute(scenarioC())
	body, _ := json.Marshal(r)
	c, rec := jsonContext(e, string(body))
	if err := h.Export(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), "dimensionamento-20240301.xlsx") {
		t.Errorf("unexpected disposition %q", rec.Header().Get(echo.HeaderContentDisposition))
	}
	if rec.Body.Len() == 0 {
		t.Error("expected a workbook body")
	}
}
