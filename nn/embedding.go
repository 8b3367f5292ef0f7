// embedding.go - Embedding-Tabellen und Lookups
//
// Hauptkomponenten:
// - DefaultEmbeddingHParams: Default-Schema eines Embedders
// - BuildEmbedding: allokiert und initialisiert eine Embedding-Tabelle
// - SoftLookup: gewichtete Mischung von Embedding-Vektoren
// - WordEmbedder: Modul um eine Embedding-Tabelle
package nn

import (
	"fmt"

	"github.com/pdevine/tensor"

	"github.com/asyml/texar-go/core"
	"github.com/asyml/texar-go/hparams"
)

// DefaultEmbeddingHParams gibt das Default-Schema eines Embedders
// zurueck. "dim" ist opak und darf ein Skalar oder eine Liste sein.
func DefaultEmbeddingHParams() hparams.Map {
	return hparams.Map{
		"name":             "embedding",
		"dim":              100,
		"initializer":      nil,
		"dropout_rate":     0.0,
		"dropout_strategy": "element",
		hparams.NoTypecheckKey: []string{"dim"},
	}
}

// BuildEmbedding erzeugt eine Embedding-Tabelle.
//
// Genau einer der beiden Pfade wird genommen: ist initValue gegeben,
// ist die Tabelle dieser Wert nach Float32 konvertiert und "dim" sowie
// "initializer" der Konfiguration werden ignoriert. Sonst muss
// vocabSize > 0 sein und die Tabelle wird mit Form [vocabSize]+dims
// allokiert und initialisiert; ohne benannten Initializer gilt
// Xavier/Glorot uniform.
func BuildEmbedding(hp *hparams.HParams, initValue *tensor.Dense, vocabSize int) (*tensor.Dense, error) {
	if initValue != nil {
		return castFloat32(initValue)
	}

	if vocabSize <= 0 {
		return nil, fmt.Errorf("nn: embedding requires either init values or a vocab size")
	}

	dims := hp.IntList("dim")
	if len(dims) == 0 {
		return nil, &hparams.ConfigError{Key: "dim", Reason: "embedding dimension must be an int or int list"}
	}
	for _, d := range dims {
		if d <= 0 {
			return nil, &hparams.ConfigError{Key: "dim", Reason: fmt.Sprintf("dimensions must be positive, got %v", dims)}
		}
	}

	spec, _ := hp.Get("initializer")
	init, err := core.ResolveInitializer(spec)
	if err != nil {
		return nil, err
	}
	if init == nil {
		init = core.XavierUniform()
	}

	table := newDense(append([]int{vocabSize}, dims...)...)
	if err := init(table); err != nil {
		return nil, err
	}
	return table, nil
}

// SoftLookup mischt Embedding-Vektoren mit einer kontinuierlichen
// Gewichtung ueber das Vokabular: eine Kontraktion der letzten Achse von
// weights mit der ersten Achse der Tabelle. Das Ergebnis hat die Form
// weights.Shape[:-1] + table.Shape[1:].
func SoftLookup(table, weights *tensor.Dense) (*tensor.Dense, error) {
	w, err := castFloat32(weights)
	if err != nil {
		return nil, err
	}

	wShape, tShape := w.Shape(), table.Shape()
	if len(wShape) == 0 || len(tShape) == 0 {
		return nil, fmt.Errorf("nn: soft lookup requires non-scalar weights and table")
	}
	if wShape[len(wShape)-1] != tShape[0] {
		return nil, fmt.Errorf("nn: soft lookup axis mismatch: weights end in %d, table has %d entries",
			wShape[len(wShape)-1], tShape[0])
	}

	return w.TensorMul(table, []int{len(wShape) - 1}, []int{0})
}

// WordEmbedder bildet diskrete Token-IDs auf Vektoren ab. Die Tabelle
// gehoert dem Embedder; Decoder mit gebundenen Embeddings teilen sie
// per Referenz.
type WordEmbedder struct {
	name      string
	Embedding *Parameter
	dims      []int
	vocabSize int
}

// NewWordEmbedder erzeugt einen Embedder mit frisch initialisierter
// Tabelle der Form [vocabSize]+dims.
func NewWordEmbedder(user hparams.Map, vocabSize int) (*WordEmbedder, error) {
	hp, err := hparams.Resolve(user, DefaultEmbeddingHParams())
	if err != nil {
		return nil, err
	}

	table, err := BuildEmbedding(hp, nil, vocabSize)
	if err != nil {
		return nil, err
	}
	return newWordEmbedder(hp, table)
}

// NewWordEmbedderFromValues erzeugt einen Embedder aus expliziten
// Initialwerten; "dim" und "initializer" der Konfiguration werden
// ignoriert.
func NewWordEmbedderFromValues(user hparams.Map, initValue *tensor.Dense) (*WordEmbedder, error) {
	hp, err := hparams.Resolve(user, DefaultEmbeddingHParams())
	if err != nil {
		return nil, err
	}

	table, err := BuildEmbedding(hp, initValue, 0)
	if err != nil {
		return nil, err
	}
	return newWordEmbedder(hp, table)
}

func newWordEmbedder(hp *hparams.HParams, table *tensor.Dense) (*WordEmbedder, error) {
	shape := table.Shape()
	if len(shape) < 2 {
		return nil, fmt.Errorf("nn: embedding table must be at least rank 2, got shape %v", shape)
	}

	dims := make([]int, len(shape)-1)
	copy(dims, shape[1:])

	name := hp.String("name", "embedding")
	return &WordEmbedder{
		name:      name,
		Embedding: NewParameter("weight", table),
		dims:      dims,
		vocabSize: shape[0],
	}, nil
}

// VocabSize gibt die Anzahl der Vokabular-Eintraege zurueck.
func (e *WordEmbedder) VocabSize() int {
	return e.vocabSize
}

// Dim gibt die flache Embedding-Dimension zurueck (Produkt aller
// Embedding-Achsen).
func (e *WordEmbedder) Dim() int {
	dim := 1
	for _, d := range e.dims {
		dim *= d
	}
	return dim
}

// Embed schlaegt die Embedding-Vektoren fuer eine ID-Folge nach.
// Das Ergebnis hat die Form [len(ids)]+dims.
func (e *WordEmbedder) Embed(ids []int) (*tensor.Dense, error) {
	rowSize := e.Dim()
	table := e.Embedding.Data()

	out := make([]float32, len(ids)*rowSize)
	for i, id := range ids {
		if id < 0 || id >= e.vocabSize {
			return nil, fmt.Errorf("nn: token id %d out of range [0, %d)", id, e.vocabSize)
		}
		copy(out[i*rowSize:(i+1)*rowSize], table[id*rowSize:(id+1)*rowSize])
	}

	return denseOf(out, append([]int{len(ids)}, e.dims...)...)
}

// SoftEmbed mischt die Tabelle mit einer Gewichtsverteilung ueber das
// Vokabular (siehe SoftLookup).
func (e *WordEmbedder) SoftEmbed(weights *tensor.Dense) (*tensor.Dense, error) {
	return SoftLookup(e.Embedding.Value, weights)
}

// Name implementiert Module.
func (e *WordEmbedder) Name() string { return e.name }

// Parameters implementiert Module.
func (e *WordEmbedder) Parameters() []*Parameter { return []*Parameter{e.Embedding} }

// Modules implementiert Module.
func (e *WordEmbedder) Modules() []Module { return nil }
