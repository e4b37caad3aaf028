package metrics_test

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cameralink/internal/metrics"
)

func TestRecordSessionOp(t *testing.T) {
	before := testutil.ToFloat64(metrics.SessionOpsTotal.WithLabelValues("start", "error"))
	metrics.RecordSessionOp("start", errors.New("boom"))
	after := testutil.ToFloat64(metrics.SessionOpsTotal.WithLabelValues("start", "error"))
	assert.Equal(t, before+1, after)
}

func TestSetSessionRunning(t *testing.T) {
	metrics.SetSessionRunning(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SessionRunning))
	metrics.SetSessionRunning(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.SessionRunning))
}

func TestPromhttpExposure(t *testing.T) {
	metrics.RecordPhotoCapture("saved")
	metrics.RecordSetupResult("success")

	recorder := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, recorder.Code)

	body := recorder.Body.String()
	assert.True(t, strings.Contains(body, `cameralink_photo_capture_total{outcome="saved"}`))
	assert.True(t, strings.Contains(body, `cameralink_setup_result_total{result="success"}`))
}
