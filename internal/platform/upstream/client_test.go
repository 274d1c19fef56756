package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/scp/internal/domain/evaluation"
	"github.com/ehr/scp/internal/domain/staffing"
)

func newTestClient(t *testing.T, h http.HandlerFunc, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Token: "secret", Timeout: 2 * time.Second, Retries: retries}, zerolog.Nop())
}

func TestClient_CreateSession(t *testing.T) {
	var got map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sessions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"s-1","bed_id":"b1","unit_id":"u1","total_points":5,"class_label":"INTERMEDIARIOS","status":"ACTIVE"}`))
	}, 0)

	s, err := c.CreateSession(context.Background(), evaluation.CreateParams{
		BedID: "b1", UnitID: "u1", MethodKey: "fugulin",
		Items: evaluation.Items{"q1": 3, "q2": 2}, RecordNumber: "12345", AuthorID: "n1",
	})
	require.NoError(t, err)
	assert.Equal(t, "s-1", s.ID)
	assert.Equal(t, 5.0, s.TotalPoints)
	assert.Equal(t, "b1", got["bed_id"])
	assert.Equal(t, "fugulin", got["method_key"])
	assert.Equal(t, "12345", got["record_number"])
}

func TestClient_CreateSessionNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 3)

	_, err := c.CreateSession(context.Background(), evaluation.CreateParams{BedID: "b1", UnitID: "u1"})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusServiceUnavailable))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_CreateSessionWithoutID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}, 0)
	_, err := c.CreateSession(context.Background(), evaluation.CreateParams{BedID: "b1"})
	require.Error(t, err)
}

func TestClient_GetRetriedOnServerError(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"s1","bed_id":"b1","status":"ACTIVE"}]`))
	}, 2)

	list, err := c.ListActiveSessions(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_GetNotRetriedOnClientError(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"unit not found"}`))
	}, 2)

	_, err := c.GetUnit(context.Background(), "u9")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, "unit not found", se.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_ListActiveSessionsEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions/active", r.URL.Path)
		assert.Equal(t, "u 1", r.URL.Query().Get("unit_id"))
		_, _ = w.Write([]byte(`{"data":[{"id":"s1","bed_id":"b1","status":"ACTIVE"},{"id":"s2","status":"ACTIVE"}]}`))
	}, 0)

	list, err := c.ListActiveSessions(context.Background(), "u 1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s2", list[1].ID)
}

func TestClient_ListActiveSessionsNull(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":null}`))
	}, 0)
	list, err := c.ListActiveSessions(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestClient_ListActiveSessionsSkipsMalformedEntries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":"s1","bed_id":"b1","status":"ACTIVE"},
			{"id":"s2","bed_id":"b2","status":"ACTIVE","expires_at":"2026-10-19 10:00:00","total_points":"12"},
			{"id":"s3","bed_id":"b3","status":"ACTIVE","total_points":7}
		]`))
	}, 0)

	list, err := c.ListActiveSessions(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s1", list[0].ID)
	assert.Equal(t, "s3", list[1].ID)
	assert.Equal(t, 7.0, list[1].TotalPoints)
}

func TestClient_ReleaseSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sessions/s1/release", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}, 0)
	require.NoError(t, c.ReleaseSession(context.Background(), "s1"))
}

func TestClient_ReleaseSessionGone(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusConflict, http.StatusGone} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}, 0)
		err := c.ReleaseSession(context.Background(), "s1")
		assert.ErrorIs(t, err, evaluation.ErrSessionGone, "status %d", code)
	}
}

func TestClient_ReleaseSessionFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}, 2)
	err := c.ReleaseSession(context.Background(), "s1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, evaluation.ErrSessionGone)
	assert.Contains(t, err.Error(), "boom")
}

func TestClient_GetClassificationMethod(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/classification-methods/fugulin", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"m1","key":"fugulin","title":"Fugulin","questions":[],"bands":[{"min":0,"max":10,"class_label":"MINIMOS"}]}`))
	}, 0)
	m, err := c.GetClassificationMethod(context.Background(), "fugulin")
	require.NoError(t, err)
	assert.Equal(t, "fugulin", m.Key)
	require.Len(t, m.Bands, 1)
	assert.Equal(t, "MINIMOS", m.Bands[0].ClassLabel)
}

func TestClient_GetHospital(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hospitals/h1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"h1","classification_method_ref":"fugulin"}`))
	}, 0)
	h, err := c.GetHospital(context.Background(), "h1")
	require.NoError(t, err)
	assert.Equal(t, "fugulin", h.ClassificationMethodRef)
}

func TestClient_SaveStaffingResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/units/u1/staffing", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 15.52, body["qp"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"r-7"}`))
	}, 0)
	id, err := c.SaveStaffingResult(context.Background(), "u1", &staffing.Result{QP: 15.52})
	require.NoError(t, err)
	assert.Equal(t, "r-7", id)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "bad", errorMessage([]byte(`{"error":"bad"}`)))
	assert.Equal(t, "plain text", errorMessage([]byte(" plain text \n")))
	assert.Equal(t, "", errorMessage(nil))
}
