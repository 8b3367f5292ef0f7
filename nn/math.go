// math.go - Zeilenweise Hilfsoperationen auf Dense-Tensoren
//
// Die Engine liefert MatMul und Tensor-Kontraktion; die uebrigen
// Operationen (Softmax, Residual-Addition, Spalten-Slicing) sind duenne
// Schleifen ueber das row-major Float32-Backing.
package nn

import (
	"fmt"
	"math"

	"github.com/pdevine/tensor"
)

// dims2 prueft auf eine 2D-Form und gibt Zeilen und Spalten zurueck.
func dims2(d *tensor.Dense, what string) (rows, cols int, err error) {
	shape := d.Shape()
	if len(shape) != 2 {
		return 0, 0, fmt.Errorf("nn: %s must be rank 2, got shape %v", what, shape)
	}
	return shape[0], shape[1], nil
}

// castFloat32 konvertiert einen Dense-Tensor nach Float32. Das Ergebnis
// ist immer eine Kopie, auch wenn der Eingang bereits Float32 ist.
func castFloat32(d *tensor.Dense) (*tensor.Dense, error) {
	shape := d.Shape()
	dims := make([]int, len(shape))
	copy(dims, shape)

	var data []float32
	switch src := d.Data().(type) {
	case []float32:
		data = make([]float32, len(src))
		copy(data, src)
	case []float64:
		data = make([]float32, len(src))
		for i, v := range src {
			data[i] = float32(v)
		}
	case []int:
		data = make([]float32, len(src))
		for i, v := range src {
			data[i] = float32(v)
		}
	case []int32:
		data = make([]float32, len(src))
		for i, v := range src {
			data[i] = float32(v)
		}
	case []int64:
		data = make([]float32, len(src))
		for i, v := range src {
			data[i] = float32(v)
		}
	default:
		return nil, fmt.Errorf("nn: cannot cast backing of type %T to float32", src)
	}

	return denseOf(data, dims...)
}

// transpose2D materialisiert die Transponierte einer 2D-Matrix.
func transpose2D(d *tensor.Dense) (*tensor.Dense, error) {
	rows, cols, err := dims2(d, "matrix")
	if err != nil {
		return nil, err
	}

	src := d.Data().([]float32)
	out := make([]float32, len(src))
	for i := range rows {
		for j := range cols {
			out[j*rows+i] = src[i*cols+j]
		}
	}
	return denseOf(out, cols, rows)
}

// sliceCols kopiert den Spaltenbereich [from, to) einer 2D-Matrix.
func sliceCols(d *tensor.Dense, from, to int) (*tensor.Dense, error) {
	rows, cols, err := dims2(d, "matrix")
	if err != nil {
		return nil, err
	}
	if from < 0 || to > cols || from >= to {
		return nil, fmt.Errorf("nn: column range [%d, %d) out of bounds for %d columns", from, to, cols)
	}

	src := d.Data().([]float32)
	width := to - from
	out := make([]float32, rows*width)
	for i := range rows {
		copy(out[i*width:(i+1)*width], src[i*cols+from:i*cols+to])
	}
	return denseOf(out, rows, width)
}

// setCols schreibt src in den Spaltenbereich [from, from+width) von dst.
func setCols(dst, src *tensor.Dense, from int) error {
	rows, cols, err := dims2(dst, "destination")
	if err != nil {
		return err
	}
	srcRows, width, err := dims2(src, "source")
	if err != nil {
		return err
	}
	if srcRows != rows || from+width > cols {
		return fmt.Errorf("nn: cannot place %dx%d block at column %d of %dx%d matrix", srcRows, width, from, rows, cols)
	}

	d := dst.Data().([]float32)
	s := src.Data().([]float32)
	for i := range rows {
		copy(d[i*cols+from:i*cols+from+width], s[i*width:(i+1)*width])
	}
	return nil
}

// addInPlace addiert b elementweise auf a (Residual-Verbindung).
func addInPlace(a, b *tensor.Dense) error {
	da := a.Data().([]float32)
	db := b.Data().([]float32)
	if len(da) != len(db) {
		return fmt.Errorf("nn: element count mismatch %d vs %d", len(da), len(db))
	}
	for i := range da {
		da[i] += db[i]
	}
	return nil
}

// scaleInPlace multipliziert alle Elemente mit s.
func scaleInPlace(d *tensor.Dense, s float32) {
	data := d.Data().([]float32)
	for i := range data {
		data[i] *= s
	}
}

// softmaxRows wendet Softmax zeilenweise in-place an. Zeilen deren
// Maximum -Inf ist (vollstaendig maskiert) bleiben 0.
func softmaxRows(d *tensor.Dense) error {
	rows, cols, err := dims2(d, "scores")
	if err != nil {
		return err
	}

	data := d.Data().([]float32)
	for i := range rows {
		row := data[i*cols : (i+1)*cols]

		max := float32(math.Inf(-1))
		for _, v := range row {
			if v > max {
				max = v
			}
		}
		if math.IsInf(float64(max), -1) {
			for j := range row {
				row[j] = 0
			}
			continue
		}

		var sum float32
		for j, v := range row {
			e := float32(math.Exp(float64(v - max)))
			row[j] = e
			sum += e
		}
		for j := range row {
			row[j] /= sum
		}
	}
	return nil
}

// maskCausal setzt Scores oberhalb der Diagonale auf -Inf, so dass
// Position i nur Positionen <= i sieht.
func maskCausal(scores *tensor.Dense) error {
	rows, cols, err := dims2(scores, "scores")
	if err != nil {
		return err
	}

	data := scores.Data().([]float32)
	negInf := float32(math.Inf(-1))
	for i := range rows {
		for j := i + 1; j < cols; j++ {
			data[i*cols+j] = negInf
		}
	}
	return nil
}

// reluInPlace wendet ReLU elementweise an.
func reluInPlace(d *tensor.Dense) {
	data := d.Data().([]float32)
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
}
