package features

import (
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func randomRows(n, d int, seed uint64) [][]float64 {
	r := rand.New(rand.NewPCG(seed, seed+1))
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, d)
		for j := range rows[i] {
			rows[i][j] = r.NormFloat64()
		}
	}
	return rows
}

func TestFromRows(t *testing.T) {
	m, err := FromRows([][]float64{{1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)
	r, c := m.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, []float64{3, 4}, Row(m, 1))

	_, err = FromRows([][]float64{{1, 2}, {3}})
	assert.Error(t, err)
	_, err = FromRows(nil)
	assert.Error(t, err)
}

func TestMatrixFileRoundTrip(t *testing.T) {
	m, err := FromRows(randomRows(4, 3, 1))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "m.npy")
	require.NoError(t, SaveMatrix(path, m))
	loaded, err := LoadMatrix(path)
	require.NoError(t, err)
	assert.True(t, mat.Equal(m, loaded))
}

func TestFitPCAKeepsRowCount(t *testing.T) {
	x, err := FromRows(randomRows(20, 10, 7))
	require.NoError(t, err)

	model, reduced, err := FitPCA(x, 4)
	require.NoError(t, err)

	r, c := reduced.Dims()
	assert.Equal(t, 20, r)
	assert.Equal(t, 4, c)
	in, out := model.Dims()
	assert.Equal(t, 10, in)
	assert.Equal(t, 4, out)
}

func TestFitPCAClampsComponents(t *testing.T) {
	x, err := FromRows(randomRows(5, 8, 3))
	require.NoError(t, err)

	_, reduced, err := FitPCA(x, 768)
	require.NoError(t, err)
	r, c := reduced.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 5, c)
}

func TestFitPCANeedsTwoRows(t *testing.T) {
	x, err := FromRows([][]float64{{1, 2, 3}})
	require.NoError(t, err)
	_, _, err = FitPCA(x, 2)
	assert.Error(t, err)
}

func TestReducedColumnsAreCentered(t *testing.T) {
	x, err := FromRows(randomRows(30, 6, 11))
	require.NoError(t, err)
	_, reduced, err := FitPCA(x, 3)
	require.NoError(t, err)

	for j := 0; j < 3; j++ {
		sum := 0.0
		for i := 0; i < 30; i++ {
			sum += reduced.At(i, j)
		}
		assert.InDelta(t, 0, sum/30, 1e-9)
	}
}

func TestProjectMatchesTransform(t *testing.T) {
	x, err := FromRows(randomRows(12, 5, 5))
	require.NoError(t, err)
	model, reduced, err := FitPCA(x, 3)
	require.NoError(t, err)

	got, err := model.Project(Row(x, 7))
	require.NoError(t, err)
	assert.InDeltaSlice(t, Row(reduced, 7), got, 1e-9)

	_, err = model.Project([]float64{1, 2})
	assert.Error(t, err)
}

func TestPCASaveLoad(t *testing.T) {
	x, err := FromRows(randomRows(10, 4, 9))
	require.NoError(t, err)
	model, _, err := FitPCA(x, 2)
	require.NoError(t, err)

	dir := t.TempDir()
	meanPath := filepath.Join(dir, "mean.npy")
	compPath := filepath.Join(dir, "components.npy")
	require.NoError(t, model.Save(meanPath, compPath))

	loaded, err := LoadPCA(meanPath, compPath)
	require.NoError(t, err)
	assert.InDeltaSlice(t, model.Mean, loaded.Mean, 0)
	assert.True(t, mat.Equal(model.Components, loaded.Components))
}
