package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comove/pkg/logger"
)

type readyBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func getReady(t *testing.T, s *Server) (int, readyBody) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	var body readyBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestReadyzWithoutChecks(t *testing.T) {
	s := NewServer(logger.Nop(), nil, WithMetricsPath(""))
	code, body := getReady(t, s)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Empty(t, body.Checks)
}

func TestReadyzReportsFailingCheck(t *testing.T) {
	s := NewServer(logger.Nop(), nil,
		WithMetricsPath(""),
		WithCheck("clickhouse", func(context.Context) error { return nil }),
		WithCheck("redis", func(context.Context) error { return errors.New("connection refused") }),
	)
	code, body := getReady(t, s)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "ok", body.Checks["clickhouse"])
	assert.Equal(t, "connection refused", body.Checks["redis"])
}

func TestHealthz(t *testing.T) {
	s := NewServer(logger.Nop(), nil, WithMetricsPath(""))
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSCanBeDisabled(t *testing.T) {
	get := func(s *Server) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("Origin", "http://dash.local")
		rec := httptest.NewRecorder()
		s.Echo().ServeHTTP(rec, req)
		return rec
	}

	on := get(NewServer(logger.Nop(), nil, WithMetricsPath("")))
	assert.Equal(t, "http://dash.local", on.Header().Get("Access-Control-Allow-Origin"))

	off := get(NewServer(logger.Nop(), nil, WithMetricsPath(""), WithCORS(false)))
	assert.Equal(t, http.StatusOK, off.Code)
	assert.Empty(t, off.Header().Get("Access-Control-Allow-Origin"))
}
