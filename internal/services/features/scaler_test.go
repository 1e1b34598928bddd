package features

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinMaxScalerRoundTrip(t *testing.T) {
	m := [][]float64{{1, 10, 5}, {3, 20, 5}, {2, 15, 5}}
	sc := NewMinMaxScaler()
	scaled, err := sc.FitTransform(m)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 0, 0}, scaled[0])
	assert.Equal(t, []float64{1, 1, 0}, scaled[1])
	assert.InDelta(t, 0.5, scaled[2][0], 1e-12)

	back, err := sc.InverseTransform(scaled)
	require.NoError(t, err)
	for i := range m {
		for j := range m[i] {
			assert.InDelta(t, m[i][j], back[i][j], 1e-9)
		}
	}
}

func TestMinMaxScalerRejectsBadShapes(t *testing.T) {
	sc := NewMinMaxScaler()
	_, err := sc.Transform([][]float64{{1}})
	assert.Error(t, err, "unfitted")

	assert.Error(t, sc.Fit(nil))
	assert.Error(t, sc.Fit([][]float64{{1, 2}, {3}}))

	require.NoError(t, sc.Fit([][]float64{{1, 2}}))
	_, err = sc.Transform([][]float64{{1, 2, 3}})
	assert.Error(t, err)
}

func TestMinMaxScalerPersistence(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "agent")
	sc := NewMinMaxScaler()
	require.NoError(t, sc.Fit([][]float64{{1, 100}, {5, 300}}))
	require.NoError(t, sc.Save(dir))

	_, err := os.Stat(filepath.Join(dir, ScalerFile))
	require.NoError(t, err)

	loaded := NewMinMaxScaler()
	require.NoError(t, loaded.Load(dir))
	assert.Equal(t, sc, loaded)

	out, err := loaded.Transform([][]float64{{3, 200}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5}, out[0])

	assert.Error(t, NewMinMaxScaler().Save(dir))
	assert.Error(t, NewMinMaxScaler().Load(t.TempDir()))
}
