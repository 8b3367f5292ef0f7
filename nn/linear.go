// linear.go - Linear- und LayerNorm-Module
package nn

import (
	"math"

	"github.com/pdevine/tensor"
)

// Linear ist eine affine Projektion y = xW + b. Das Gewicht liegt als
// [in, out] im Speicher; Checkpoints in Torch-Konvention [out, in]
// werden vom Loader transponiert.
type Linear struct {
	name string
	in   int
	out  int

	Weight *Parameter
	Bias   *Parameter // nil wenn use_bias false
}

// NewLinear erzeugt eine Projektion von in nach out Dimensionen.
func NewLinear(name string, in, out int, bias bool) (*Linear, error) {
	if in <= 0 || out <= 0 {
		return nil, &DimensionMismatchError{Module: name, Field: "in/out dimensions", Want: 1, Got: min(in, out)}
	}

	l := &Linear{
		name:   name,
		in:     in,
		out:    out,
		Weight: NewParameter("weight", newDense(in, out)),
	}
	if bias {
		l.Bias = NewParameter("bias", newDense(out))
	}
	return l, nil
}

// Forward wendet die Projektion auf x der Form [n, in] an.
func (l *Linear) Forward(x *tensor.Dense) (*tensor.Dense, error) {
	if _, cols, err := dims2(x, l.name+" input"); err != nil {
		return nil, err
	} else if cols != l.in {
		return nil, &DimensionMismatchError{Module: l.name, Field: "input dimension", Want: l.in, Got: cols}
	}

	y, err := x.MatMul(l.Weight.Value)
	if err != nil {
		return nil, err
	}

	if l.Bias != nil {
		data := y.Data().([]float32)
		bias := l.Bias.Data()
		for i := 0; i < len(data); i += l.out {
			for j, b := range bias {
				data[i+j] += b
			}
		}
	}
	return y, nil
}

// Name implementiert Module.
func (l *Linear) Name() string { return l.name }

// Parameters implementiert Module.
func (l *Linear) Parameters() []*Parameter {
	params := []*Parameter{l.Weight}
	if l.Bias != nil {
		params = append(params, l.Bias)
	}
	return params
}

// Modules implementiert Module.
func (l *Linear) Modules() []Module { return nil }

// LayerNorm normalisiert Zeilen auf Mittelwert 0 und Varianz 1 und
// skaliert mit gelernten Parametern. Gamma startet bei 1, Beta bei 0;
// die globale Re-Initialisierung eines Modells laesst beide unberuehrt.
type LayerNorm struct {
	name string
	dim  int
	eps  float64

	Gamma *Parameter
	Beta  *Parameter
}

// NewLayerNorm erzeugt eine LayerNorm ueber die letzte Achse.
func NewLayerNorm(name string, dim int, eps float64) (*LayerNorm, error) {
	if dim <= 0 {
		return nil, &DimensionMismatchError{Module: name, Field: "dim", Want: 1, Got: dim}
	}
	if eps <= 0 {
		eps = 1e-6
	}

	gamma := newDense(dim)
	ones := gamma.Data().([]float32)
	for i := range ones {
		ones[i] = 1
	}

	return &LayerNorm{
		name:  name,
		dim:   dim,
		eps:   eps,
		Gamma: NewParameter("gamma", gamma),
		Beta:  NewParameter("beta", newDense(dim)),
	}, nil
}

// Forward normalisiert x der Form [n, dim] zeilenweise.
func (n *LayerNorm) Forward(x *tensor.Dense) (*tensor.Dense, error) {
	rows, cols, err := dims2(x, n.name+" input")
	if err != nil {
		return nil, err
	}
	if cols != n.dim {
		return nil, &DimensionMismatchError{Module: n.name, Field: "input dimension", Want: n.dim, Got: cols}
	}

	src := x.Data().([]float32)
	gamma := n.Gamma.Data()
	beta := n.Beta.Data()

	out := make([]float32, len(src))
	for i := range rows {
		row := src[i*cols : (i+1)*cols]

		var mean float64
		for _, v := range row {
			mean += float64(v)
		}
		mean /= float64(cols)

		var variance float64
		for _, v := range row {
			d := float64(v) - mean
			variance += d * d
		}
		variance /= float64(cols)

		inv := 1 / math.Sqrt(variance+n.eps)
		for j, v := range row {
			norm := (float64(v) - mean) * inv
			out[i*cols+j] = float32(norm)*gamma[j] + beta[j]
		}
	}

	return denseOf(out, rows, cols)
}

// Name implementiert Module.
func (n *LayerNorm) Name() string { return n.name }

// Parameters implementiert Module.
func (n *LayerNorm) Parameters() []*Parameter { return []*Parameter{n.Gamma, n.Beta} }

// Modules implementiert Module.
func (n *LayerNorm) Modules() []Module { return nil }
