package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modelwatch/modelwatch/internal/baseline"
	"github.com/modelwatch/modelwatch/internal/drift"
	"github.com/modelwatch/modelwatch/internal/lifecycle"
	"github.com/modelwatch/modelwatch/internal/registry"
	"github.com/modelwatch/modelwatch/internal/serving"
	"github.com/modelwatch/modelwatch/internal/trainer"
	"github.com/modelwatch/modelwatch/internal/window"
	"github.com/modelwatch/modelwatch/pkg/models"
)

type echoModel struct{ version string }

func (m echoModel) Version() string { return m.version }

func (m echoModel) Predict(map[string]models.FeatureValue) (string, float64, error) {
	return "churn", 0.9, nil
}

type echoLoader struct{}

func (echoLoader) Load(_ context.Context, mv models.ModelVersion) (serving.Model, error) {
	return echoModel{version: mv.ID}, nil
}

type noopRunner struct{}

func (noopRunner) Train(context.Context, trainer.Request) (*trainer.Response, error) {
	return &trainer.Response{}, nil
}

func newTestRouter(t *testing.T, withModel bool) (*gin.Engine, *window.Window) {
	t.Helper()

	baselines, err := baseline.NewStore(t.TempDir(), 0, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { baselines.Close() })

	reg, err := registry.NewRegistry(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	w := window.New(100)
	pointer := serving.NewPointer()
	swapper := serving.NewHotSwapper(pointer, echoLoader{},
		[]map[string]models.FeatureValue{{}}, zap.NewNop())
	if withModel {
		require.NoError(t, swapper.Swap(context.Background(), models.ModelVersion{ID: "v1"}))
	}
	svc := serving.NewService(pointer, w, zap.NewNop())

	analyzer := drift.NewAnalyzer(0.05, 0.5, 30, zap.NewNop())
	orch := lifecycle.NewOrchestrator(
		lifecycle.Config{Deadline: time.Second},
		analyzer, baselines, w, reg, swapper, noopRunner{}, nil, nil, zap.NewNop())

	return newRouter(svc, w, reg, orch, zap.NewNop()), w
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t, false)
	rec := doJSON(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"model_loaded":false`)
}

func TestPredict(t *testing.T) {
	router, w := newTestRouter(t, true)

	rec := doJSON(router, http.MethodPost, "/v1/predict", `{"tenure": 12, "contract": "monthly"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"label":"churn"`)
	assert.Contains(t, rec.Body.String(), `"confidence":"High"`)
	assert.Equal(t, 1, w.Len())
}

func TestPredict_NoActiveModel(t *testing.T) {
	router, _ := newTestRouter(t, false)

	rec := doJSON(router, http.MethodPost, "/v1/predict", `{"tenure": 12}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
	assert.Contains(t, rec.Body.String(), "no-active-model")
}

func TestPredict_MalformedBody(t *testing.T) {
	router, _ := newTestRouter(t, true)
	rec := doJSON(router, http.MethodPost, "/v1/predict", `{"tenure": [1,2]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "problems/validation")
}

func TestPredictBatch(t *testing.T) {
	router, w := newTestRouter(t, true)
	rec := doJSON(router, http.MethodPost, "/v1/predict/batch", `[{"tenure": 1}, {"tenure": 2}]`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":2`)
	assert.Equal(t, 2, w.Len())
}

func TestIngest(t *testing.T) {
	router, w := newTestRouter(t, false)

	rec := doJSON(router, http.MethodPost, "/v1/predictions",
		`{"request_id":"r1","features":{"tenure":5},"predicted_label":"stay","predicted_probability":0.2,"model_version":"ext-1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 1, w.Len())
	assert.Equal(t, "r1", w.Snapshot()[0].RequestID)
	assert.False(t, w.Snapshot()[0].Timestamp.IsZero())
}

func TestFeedback(t *testing.T) {
	router, _ := newTestRouter(t, true)

	rec := doJSON(router, http.MethodPost, "/v1/predict", `{"tenure": 12}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodPost, "/v1/feedback", `{"request_id":"unknown","true_label":"churn"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(router, http.MethodPost, "/v1/feedback", `{"request_id":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDriftReport_NoneYet(t *testing.T) {
	router, _ := newTestRouter(t, false)
	rec := doJSON(router, http.MethodGet, "/v1/drift/report", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDriftCheck_NoBaseline(t *testing.T) {
	router, _ := newTestRouter(t, false)
	rec := doJSON(router, http.MethodPost, "/v1/drift/check", "")
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Contains(t, rec.Body.String(), "no-baseline")
}

func TestActiveModel_NoneRegistered(t *testing.T) {
	router, _ := newTestRouter(t, false)
	rec := doJSON(router, http.MethodGet, "/v1/models/active", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRollback_UnknownVersion(t *testing.T) {
	router, _ := newTestRouter(t, false)
	rec := doJSON(router, http.MethodPost, "/v1/models/missing/rollback", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, false)
	rec := doJSON(router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "modelwatch_")
}