// attention.go - Multi-Head Attention
package nn

import (
	"math"

	"github.com/pdevine/tensor"

	"github.com/asyml/texar-go/hparams"
)

// DefaultAttentionHParams gibt das Default-Schema einer Multi-Head
// Attention zurueck.
func DefaultAttentionHParams() hparams.Map {
	return hparams.Map{
		"name":         "self",
		"num_heads":    12,
		"num_units":    768,
		"output_dim":   768,
		"dropout_rate": 0.1,
		"use_bias":     false,
	}
}

// MultiheadAttention projiziert Anfragen, Schluessel und Werte in
// num_heads Teilraeume und mischt die Ergebnisse mit einer
// Ausgabeprojektion zurueck.
type MultiheadAttention struct {
	name     string
	numHeads int
	headDim  int
	units    int

	Query  *Linear
	Key    *Linear
	Value  *Linear
	Output *Linear
}

// NewMultiheadAttention erzeugt eine Attention ueber Eingaben der
// Dimension dim. num_units muss durch num_heads teilbar sein; die
// Verletzung ist ein Konstruktionsfehler, kein Forward-Fehler.
func NewMultiheadAttention(user hparams.Map, dim int) (*MultiheadAttention, error) {
	hp, err := hparams.Resolve(user, DefaultAttentionHParams())
	if err != nil {
		return nil, err
	}

	name := hp.String("name", "self")
	numHeads := hp.Int("num_heads")
	units := hp.Int("num_units")
	outputDim := hp.Int("output_dim")
	bias := hp.Bool("use_bias")

	if numHeads <= 0 {
		return nil, &DimensionMismatchError{Module: name, Field: "num_heads", Want: 1, Got: numHeads}
	}
	if units%numHeads != 0 {
		return nil, &DimensionMismatchError{Module: name, Field: "num_units % num_heads", Want: 0, Got: units % numHeads}
	}

	attn := &MultiheadAttention{
		name:     name,
		numHeads: numHeads,
		headDim:  units / numHeads,
		units:    units,
	}

	if attn.Query, err = NewLinear("query", dim, units, bias); err != nil {
		return nil, err
	}
	if attn.Key, err = NewLinear("key", dim, units, bias); err != nil {
		return nil, err
	}
	if attn.Value, err = NewLinear("value", dim, units, bias); err != nil {
		return nil, err
	}
	if attn.Output, err = NewLinear("output", units, outputDim, bias); err != nil {
		return nil, err
	}
	return attn, nil
}

// OutputDim gibt die Dimension der Ausgabeprojektion zurueck.
func (a *MultiheadAttention) OutputDim() int {
	return a.Output.out
}

// Forward berechnet Attention von queries ([Tq, dim]) ueber memory
// ([Tk, dim]). Mit causal sieht Position i nur Positionen <= i
// (Selbst-Attention im Decoder).
func (a *MultiheadAttention) Forward(queries, memory *tensor.Dense, causal bool) (*tensor.Dense, error) {
	q, err := a.Query.Forward(queries)
	if err != nil {
		return nil, err
	}
	k, err := a.Key.Forward(memory)
	if err != nil {
		return nil, err
	}
	v, err := a.Value.Forward(memory)
	if err != nil {
		return nil, err
	}

	tq, _, err := dims2(q, "queries")
	if err != nil {
		return nil, err
	}

	mixed := newDense(tq, a.units)
	scale := float32(1 / math.Sqrt(float64(a.headDim)))

	for head := range a.numHeads {
		from := head * a.headDim
		to := from + a.headDim

		qh, err := sliceCols(q, from, to)
		if err != nil {
			return nil, err
		}
		kh, err := sliceCols(k, from, to)
		if err != nil {
			return nil, err
		}
		vh, err := sliceCols(v, from, to)
		if err != nil {
			return nil, err
		}

		khT, err := transpose2D(kh)
		if err != nil {
			return nil, err
		}
		scores, err := qh.MatMul(khT)
		if err != nil {
			return nil, err
		}
		scaleInPlace(scores, scale)

		if causal {
			if err := maskCausal(scores); err != nil {
				return nil, err
			}
		}
		if err := softmaxRows(scores); err != nil {
			return nil, err
		}

		ctx, err := scores.MatMul(vh)
		if err != nil {
			return nil, err
		}
		if err := setCols(mixed, ctx, from); err != nil {
			return nil, err
		}
	}

	return a.Output.Forward(mixed)
}

// Name implementiert Module.
func (a *MultiheadAttention) Name() string { return a.name }

// Parameters implementiert Module.
func (a *MultiheadAttention) Parameters() []*Parameter { return nil }

// Modules implementiert Module.
func (a *MultiheadAttention) Modules() []Module {
	return []Module{a.Query, a.Key, a.Value, a.Output}
}
