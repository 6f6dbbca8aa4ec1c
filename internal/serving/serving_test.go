package serving

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modelwatch/modelwatch/internal/window"
	"github.com/modelwatch/modelwatch/pkg/models"
)

type stubModel struct {
	version string
	label   string
	prob    float64
	err     error
}

func (m *stubModel) Version() string { return m.version }

func (m *stubModel) Predict(map[string]models.FeatureValue) (string, float64, error) {
	return m.label, m.prob, m.err
}

type stubLoader struct {
	model Model
	err   error
}

func (l stubLoader) Load(context.Context, models.ModelVersion) (Model, error) {
	return l.model, l.err
}

func writeArtifact(t *testing.T, spec artifactSpec) string {
	t.Helper()
	data, err := json.Marshal(spec)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestFileArtifactLoader_LinearModel(t *testing.T) {
	path := writeArtifact(t, artifactSpec{
		Bias:            -1,
		Weights:         map[string]float64{"tenure": 0.1},
		CategoryWeights: map[string]map[string]float64{"contract": {"monthly": 2}},
		PositiveLabel:   "churn",
		NegativeLabel:   "stay",
	})

	m, err := FileArtifactLoader{}.Load(context.Background(), models.ModelVersion{ID: "v1", ArtifactPath: path})
	require.NoError(t, err)
	assert.Equal(t, "v1", m.Version())

	// bias -1 + 0.1*30 + 2 = 4 -> sigmoid well above 0.5
	label, p, err := m.Predict(map[string]models.FeatureValue{
		"tenure":   models.Numeric(30),
		"contract": models.Categorical("monthly"),
	})
	require.NoError(t, err)
	assert.Equal(t, "churn", label)
	assert.Greater(t, p, 0.9)

	// bias only: sigmoid(-1) < 0.5
	label, p, err = m.Predict(map[string]models.FeatureValue{})
	require.NoError(t, err)
	assert.Equal(t, "stay", label)
	assert.Less(t, p, 0.5)
}

func TestFileArtifactLoader_MissingFile(t *testing.T) {
	_, err := FileArtifactLoader{}.Load(context.Background(), models.ModelVersion{
		ID: "v1", ArtifactPath: filepath.Join(t.TempDir(), "absent.json"),
	})
	assert.Error(t, err)
}

func TestHotSwapper_SwapInstallsModel(t *testing.T) {
	pointer := NewPointer()
	m := &stubModel{version: "v1", label: "yes", prob: 0.7}
	h := NewHotSwapper(pointer, stubLoader{model: m}, probes(), zap.NewNop())

	require.NoError(t, h.Swap(context.Background(), models.ModelVersion{ID: "v1"}))
	require.NotNil(t, pointer.Load())
	assert.Equal(t, "v1", pointer.Load().Version())
}

func TestHotSwapper_LoadFailureKeepsPriorPointer(t *testing.T) {
	pointer := NewPointer()
	old := &stubModel{version: "old", label: "yes", prob: 0.7}
	pointer.store(old)

	h := NewHotSwapper(pointer, stubLoader{err: os.ErrNotExist}, probes(), zap.NewNop())
	err := h.Swap(context.Background(), models.ModelVersion{ID: "new"})

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "new", loadErr.Version)
	assert.Equal(t, "old", pointer.Load().Version())
}

func TestHotSwapper_SmokeTestFailureKeepsPriorPointer(t *testing.T) {
	pointer := NewPointer()
	old := &stubModel{version: "old", label: "yes", prob: 0.7}
	pointer.store(old)

	bad := &stubModel{version: "new", label: "", prob: 0.5}
	h := NewHotSwapper(pointer, stubLoader{model: bad}, probes(), zap.NewNop())
	err := h.Swap(context.Background(), models.ModelVersion{ID: "new"})

	var smokeErr *SmokeTestError
	require.ErrorAs(t, err, &smokeErr)
	assert.Equal(t, "old", pointer.Load().Version())
}

func TestPointer_ConcurrentReadersDuringSwap(t *testing.T) {
	pointer := NewPointer()
	old := &stubModel{version: "old", label: "yes", prob: 0.7}
	pointer.store(old)

	h := NewHotSwapper(pointer, stubLoader{model: &stubModel{version: "new", label: "yes", prob: 0.7}}, probes(), zap.NewNop())

	start := make(chan struct{})
	wg := sync.WaitGroup{}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 1000; j++ {
				m := pointer.Load()
				if !assert.NotNil(t, m) {
					return
				}
				v := m.Version()
				// readers observe only the pre-swap or post-swap
				// version, never a mixed state
				assert.Contains(t, []string{"old", "new"}, v)
			}
		}()
	}

	close(start)
	require.NoError(t, h.Swap(context.Background(), models.ModelVersion{ID: "new"}))
	wg.Wait()

	assert.Equal(t, "new", pointer.Load().Version())
}

func TestService_PredictAppendsToWindow(t *testing.T) {
	pointer := NewPointer()
	pointer.store(&stubModel{version: "v1", label: "churn", prob: 0.85})
	w := window.New(10)
	svc := NewService(pointer, w, zap.NewNop())

	features := map[string]models.FeatureValue{"tenure": models.Numeric(5)}
	pred, err := svc.Predict(features)
	require.NoError(t, err)

	assert.Equal(t, "churn", pred.Label)
	assert.Equal(t, "High", pred.Confidence)
	assert.Equal(t, "v1", pred.ModelVersion)
	assert.NotEmpty(t, pred.RequestID)

	require.Equal(t, 1, w.Len())
	rec := w.Snapshot()[0]
	assert.Equal(t, pred.RequestID, rec.RequestID)
	assert.Equal(t, "churn", rec.PredictedLabel)
	assert.Equal(t, "v1", rec.ModelVersion)
}

func TestService_NoActiveModel(t *testing.T) {
	svc := NewService(NewPointer(), window.New(10), zap.NewNop())
	_, err := svc.Predict(map[string]models.FeatureValue{})
	assert.ErrorIs(t, err, ErrNoActiveModel)
}

func TestConfidenceBands(t *testing.T) {
	assert.Equal(t, "High", confidence(0.9))
	assert.Equal(t, "High", confidence(0.1))
	assert.Equal(t, "Medium", confidence(0.65))
	assert.Equal(t, "Medium", confidence(0.35))
	assert.Equal(t, "Low", confidence(0.5))
	assert.Equal(t, "Low", confidence(0.42))
}

func probes() []map[string]models.FeatureValue {
	return []map[string]models.FeatureValue{{}}
}
