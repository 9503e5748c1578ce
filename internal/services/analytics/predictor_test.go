package analytics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RiskGate/internal/domain/models"
	xhttp "RiskGate/pkg/http"
)

func TestHTTPPredictorRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(models.Prediction{FraudProbability: 0.7, AnomalyScore: 0.2, Confidence: 1.4})
	}))
	defer srv.Close()

	p := NewHTTPPredictor(srv.URL+"/", time.Second, 3)
	got, err := p.Predict(t.Context(), models.Features{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, 0.7, got.FraudProbability)
	assert.Equal(t, 1.0, got.Confidence)
	assert.Equal(t, "remote", got.Model)
}

func TestHTTPPredictorStopsOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad features", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewHTTPPredictor(srv.URL, time.Second, 3)
	_, err := p.Predict(t.Context(), models.Features{})
	require.Error(t, err)

	var se *xhttp.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, "bad features", se.Body)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPPredictorRejectsOutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"fraud_probability":1.5}`))
	}))
	defer srv.Close()

	_, err := NewHTTPPredictor(srv.URL, time.Second, 1).Predict(t.Context(), models.Features{})
	assert.Error(t, err)
}

func TestHTTPPredictorWithoutURL(t *testing.T) {
	_, err := NewHTTPPredictor("", time.Second, 1).Predict(t.Context(), models.Features{})
	assert.Error(t, err)
}
