package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/dolma-harvest/internal/api"
	"github.com/JakeFAU/dolma-harvest/internal/pipeline"
)

type stubReporter map[string]pipeline.SourceProgress

func (s stubReporter) Progress() map[string]pipeline.SourceProgress {
	return s
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := api.NewServer(stubReporter{}, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestProgress(t *testing.T) {
	t.Parallel()

	reporter := stubReporter{
		"dolma": {Done: 3, Total: 10},
	}
	srv := api.NewServer(reporter, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/progress", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]pipeline.SourceProgress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, map[string]pipeline.SourceProgress(reporter), got)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := api.NewServer(stubReporter{}, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
