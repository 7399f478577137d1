package features

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PCA is a fitted principal component projection.
type PCA struct {
	Mean       []float64  // column means of the training data, length d
	Components *mat.Dense // d x k, one principal axis per column
}

// FitPCA fits up to k components to the rows of x and returns the model
// together with x projected onto it. k is clamped to min(rows, cols).
func FitPCA(x *mat.Dense, k int) (*PCA, *mat.Dense, error) {
	n, d := x.Dims()
	if n < 2 {
		return nil, nil, fmt.Errorf("need at least 2 rows for PCA, got %d", n)
	}
	k = min(k, n, d)
	if k < 1 {
		return nil, nil, fmt.Errorf("invalid component count %d", k)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return nil, nil, fmt.Errorf("principal component decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	components := mat.DenseCopyOf(vecs.Slice(0, d, 0, k))

	mean := make([]float64, d)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mean[j] = stat.Mean(mat.Col(col, j, x), nil)
	}

	model := &PCA{Mean: mean, Components: components}
	return model, model.Transform(x), nil
}

// Dims returns the input and output dimensionality.
func (p *PCA) Dims() (in, out int) {
	return p.Components.Dims()
}

// Transform centers the rows of x and projects them onto the components.
func (p *PCA) Transform(x mat.Matrix) *mat.Dense {
	n, d := x.Dims()
	centered := mat.NewDense(n, d, nil)
	centered.Apply(func(_, j int, v float64) float64 { return v - p.Mean[j] }, x)

	var out mat.Dense
	out.Mul(centered, p.Components)
	return &out
}

// Project maps a single vector into the reduced space.
func (p *PCA) Project(v []float64) ([]float64, error) {
	in, _ := p.Dims()
	if len(v) != in {
		return nil, fmt.Errorf("vector has %d dimensions, model expects %d", len(v), in)
	}
	row := mat.NewDense(1, in, append([]float64(nil), v...))
	return Row(p.Transform(row), 0), nil
}

// Save writes the model as two .npy files.
func (p *PCA) Save(meanPath, componentsPath string) error {
	if err := SaveVector(meanPath, p.Mean); err != nil {
		return err
	}
	return SaveMatrix(componentsPath, p.Components)
}

// LoadPCA reads a model written by Save.
func LoadPCA(meanPath, componentsPath string) (*PCA, error) {
	mean, err := LoadVector(meanPath)
	if err != nil {
		return nil, err
	}
	components, err := LoadMatrix(componentsPath)
	if err != nil {
		return nil, err
	}
	if d, _ := components.Dims(); d != len(mean) {
		return nil, fmt.Errorf("pca mean has %d entries but components have %d rows", len(mean), d)
	}
	return &PCA{Mean: mean, Components: components}, nil
}
