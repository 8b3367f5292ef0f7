// transformer.go - Transformer Encoder- und Decoder-Stacks
//
// Hauptkomponenten:
// - PoswiseFeedForward: positionsweises FFN (Linear, ReLU, Linear)
// - EncoderBlock / DecoderBlock: Residual-Bloecke mit LayerNorm
// - TransformerEncoder / TransformerDecoder: Block-Stacks
// - TokenEmbedder / OutputLayer: injizierte Abhaengigkeiten des Decoders
//
// Der Decoder erhaelt seine Token-Einbettung als injizierte Funktion;
// bei gebundenen Embeddings zeigt sie auf denselben Embedder wie der
// Encoder-Pfad. Die Ausgabeprojektion ist per Default die Identitaet.
package nn

import (
	"fmt"

	"github.com/pdevine/tensor"

	"github.com/asyml/texar-go/hparams"
)

// TokenEmbedder bildet eine Token-ID-Folge auf [T, dim] ab.
type TokenEmbedder func(ids []int) (*tensor.Dense, error)

// OutputLayer transformiert die Decoder-Zustaende, typischerweise eine
// Projektion auf Vokabular-Logits oder die Identitaet.
type OutputLayer func(states *tensor.Dense) (*tensor.Dense, error)

// Identity ist die Ausgabeprojektion die Zustaende unveraendert
// durchreicht.
func Identity(states *tensor.Dense) (*tensor.Dense, error) {
	return states, nil
}

// DefaultEncoderHParams gibt das Default-Schema eines
// Transformer-Encoders zurueck (T5-Base Geometrie).
func DefaultEncoderHParams() hparams.Map {
	return hparams.Map{
		"name":                "encoder",
		"dim":                 768,
		"num_blocks":          12,
		"hidden_dim":          3072,
		"embedding_dropout":   0.1,
		"residual_dropout":    0.1,
		"eps":                 1e-6,
		"use_bias":            false,
		"multihead_attention": DefaultAttentionHParams(),
	}
}

// DefaultDecoderHParams gibt das Default-Schema eines
// Transformer-Decoders zurueck.
func DefaultDecoderHParams() hparams.Map {
	m := DefaultEncoderHParams()
	m["name"] = "decoder"
	return m
}

// PoswiseFeedForward ist das positionsweise FFN eines Blocks.
type PoswiseFeedForward struct {
	name string
	Up   *Linear
	Down *Linear
}

func newPoswiseFeedForward(dim, hidden int, bias bool) (*PoswiseFeedForward, error) {
	up, err := NewLinear("wi", dim, hidden, bias)
	if err != nil {
		return nil, err
	}
	down, err := NewLinear("wo", hidden, dim, bias)
	if err != nil {
		return nil, err
	}
	return &PoswiseFeedForward{name: "poswise_feedforward", Up: up, Down: down}, nil
}

// Forward wendet Linear, ReLU, Linear auf x der Form [T, dim] an.
func (f *PoswiseFeedForward) Forward(x *tensor.Dense) (*tensor.Dense, error) {
	h, err := f.Up.Forward(x)
	if err != nil {
		return nil, err
	}
	reluInPlace(h)
	return f.Down.Forward(h)
}

// Name implementiert Module.
func (f *PoswiseFeedForward) Name() string { return f.name }

// Parameters implementiert Module.
func (f *PoswiseFeedForward) Parameters() []*Parameter { return nil }

// Modules implementiert Module.
func (f *PoswiseFeedForward) Modules() []Module { return []Module{f.Up, f.Down} }

// EncoderBlock ist ein Residual-Block aus Selbst-Attention und FFN.
type EncoderBlock struct {
	name string

	SelfAttention *MultiheadAttention
	SelfNorm      *LayerNorm
	FeedForward   *PoswiseFeedForward
	FFNNorm       *LayerNorm
}

func newEncoderBlock(index int, attnConf hparams.Map, dim, hidden int, eps float64, bias bool) (*EncoderBlock, error) {
	b := &EncoderBlock{name: fmt.Sprintf("layer_%d", index)}

	var err error
	if b.SelfAttention, err = NewMultiheadAttention(attnConf, dim); err != nil {
		return nil, err
	}
	if got := b.SelfAttention.OutputDim(); got != dim {
		return nil, &DimensionMismatchError{Module: b.name, Field: "attention output_dim", Want: dim, Got: got}
	}
	if b.SelfNorm, err = NewLayerNorm("self_attention_layer_norm", dim, eps); err != nil {
		return nil, err
	}
	if b.FeedForward, err = newPoswiseFeedForward(dim, hidden, bias); err != nil {
		return nil, err
	}
	if b.FFNNorm, err = NewLayerNorm("ffn_layer_norm", dim, eps); err != nil {
		return nil, err
	}
	return b, nil
}

// Forward verarbeitet x der Form [T, dim].
func (b *EncoderBlock) Forward(x *tensor.Dense) (*tensor.Dense, error) {
	attn, err := b.SelfAttention.Forward(x, x, false)
	if err != nil {
		return nil, err
	}
	if err := addInPlace(attn, x); err != nil {
		return nil, err
	}
	h, err := b.SelfNorm.Forward(attn)
	if err != nil {
		return nil, err
	}

	ffn, err := b.FeedForward.Forward(h)
	if err != nil {
		return nil, err
	}
	if err := addInPlace(ffn, h); err != nil {
		return nil, err
	}
	return b.FFNNorm.Forward(ffn)
}

// Name implementiert Module.
func (b *EncoderBlock) Name() string { return b.name }

// Parameters implementiert Module.
func (b *EncoderBlock) Parameters() []*Parameter { return nil }

// Modules implementiert Module.
func (b *EncoderBlock) Modules() []Module {
	return []Module{b.SelfAttention, b.SelfNorm, b.FeedForward, b.FFNNorm}
}

// DecoderBlock erweitert den Encoder-Block um kausale Selbst-Attention
// und Cross-Attention auf die Encoder-Ausgabe.
type DecoderBlock struct {
	name string

	SelfAttention  *MultiheadAttention
	SelfNorm       *LayerNorm
	CrossAttention *MultiheadAttention
	CrossNorm      *LayerNorm
	FeedForward    *PoswiseFeedForward
	FFNNorm        *LayerNorm
}

func newDecoderBlock(index int, attnConf hparams.Map, dim, hidden int, eps float64, bias bool) (*DecoderBlock, error) {
	b := &DecoderBlock{name: fmt.Sprintf("layer_%d", index)}

	var err error
	if b.SelfAttention, err = NewMultiheadAttention(attnConf, dim); err != nil {
		return nil, err
	}
	if got := b.SelfAttention.OutputDim(); got != dim {
		return nil, &DimensionMismatchError{Module: b.name, Field: "attention output_dim", Want: dim, Got: got}
	}

	crossConf := hparams.Map{}
	for k, v := range attnConf {
		crossConf[k] = v
	}
	crossConf["name"] = "encdec"
	if b.CrossAttention, err = NewMultiheadAttention(crossConf, dim); err != nil {
		return nil, err
	}

	if b.SelfNorm, err = NewLayerNorm("self_attention_layer_norm", dim, eps); err != nil {
		return nil, err
	}
	if b.CrossNorm, err = NewLayerNorm("cross_attention_layer_norm", dim, eps); err != nil {
		return nil, err
	}
	if b.FeedForward, err = newPoswiseFeedForward(dim, hidden, bias); err != nil {
		return nil, err
	}
	if b.FFNNorm, err = NewLayerNorm("ffn_layer_norm", dim, eps); err != nil {
		return nil, err
	}
	return b, nil
}

// Forward verarbeitet x der Form [T, dim] mit Encoder-Zustaenden memory.
func (b *DecoderBlock) Forward(x, memory *tensor.Dense) (*tensor.Dense, error) {
	attn, err := b.SelfAttention.Forward(x, x, true)
	if err != nil {
		return nil, err
	}
	if err := addInPlace(attn, x); err != nil {
		return nil, err
	}
	h, err := b.SelfNorm.Forward(attn)
	if err != nil {
		return nil, err
	}

	cross, err := b.CrossAttention.Forward(h, memory, false)
	if err != nil {
		return nil, err
	}
	if err := addInPlace(cross, h); err != nil {
		return nil, err
	}
	h, err = b.CrossNorm.Forward(cross)
	if err != nil {
		return nil, err
	}

	ffn, err := b.FeedForward.Forward(h)
	if err != nil {
		return nil, err
	}
	if err := addInPlace(ffn, h); err != nil {
		return nil, err
	}
	return b.FFNNorm.Forward(ffn)
}

// Name implementiert Module.
func (b *DecoderBlock) Name() string { return b.name }

// Parameters implementiert Module.
func (b *DecoderBlock) Parameters() []*Parameter { return nil }

// Modules implementiert Module.
func (b *DecoderBlock) Modules() []Module {
	return []Module{b.SelfAttention, b.SelfNorm, b.CrossAttention, b.CrossNorm, b.FeedForward, b.FFNNorm}
}

// TransformerEncoder ist ein Stack von Encoder-Bloecken mit finaler
// LayerNorm.
type TransformerEncoder struct {
	name string
	dim  int

	Blocks    []*EncoderBlock
	FinalNorm *LayerNorm
}

// NewTransformerEncoder erzeugt einen Encoder-Stack aus der
// Konfiguration. Dimensionsfehler werden hier gemeldet, nicht erst im
// Forward-Durchlauf.
func NewTransformerEncoder(user hparams.Map) (*TransformerEncoder, error) {
	hp, err := hparams.Resolve(user, DefaultEncoderHParams())
	if err != nil {
		return nil, err
	}

	dim := hp.Int("dim")
	numBlocks := hp.Int("num_blocks")
	if numBlocks <= 0 {
		return nil, &DimensionMismatchError{Module: hp.String("name"), Field: "num_blocks", Want: 1, Got: numBlocks}
	}

	enc := &TransformerEncoder{name: hp.String("name", "encoder"), dim: dim}
	attnConf := hp.Sub("multihead_attention").ToMap()
	hidden := hp.Int("hidden_dim")
	eps := hp.Float("eps")
	bias := hp.Bool("use_bias")

	for i := range numBlocks {
		block, err := newEncoderBlock(i, attnConf, dim, hidden, eps, bias)
		if err != nil {
			return nil, err
		}
		enc.Blocks = append(enc.Blocks, block)
	}

	if enc.FinalNorm, err = NewLayerNorm("final_layer_norm", dim, eps); err != nil {
		return nil, err
	}
	return enc, nil
}

// Dim gibt die Modell-Dimension des Encoders zurueck.
func (e *TransformerEncoder) Dim() int { return e.dim }

// Forward verarbeitet eingebettete Eingaben der Form [T, dim].
func (e *TransformerEncoder) Forward(x *tensor.Dense) (*tensor.Dense, error) {
	h := x
	var err error
	for _, block := range e.Blocks {
		if h, err = block.Forward(h); err != nil {
			return nil, err
		}
	}
	return e.FinalNorm.Forward(h)
}

// Name implementiert Module.
func (e *TransformerEncoder) Name() string { return e.name }

// Parameters implementiert Module.
func (e *TransformerEncoder) Parameters() []*Parameter { return nil }

// Modules implementiert Module.
func (e *TransformerEncoder) Modules() []Module {
	mods := make([]Module, 0, len(e.Blocks)+1)
	for _, b := range e.Blocks {
		mods = append(mods, b)
	}
	return append(mods, e.FinalNorm)
}

// TransformerDecoder ist ein Stack von Decoder-Bloecken. Die
// Token-Einbettung ist eine injizierte Funktion (geteilter Embedder bei
// gebundenen Embeddings), die Ausgabeprojektion per Default Identity.
type TransformerDecoder struct {
	name string
	dim  int

	tokenEmbedder TokenEmbedder
	outputLayer   OutputLayer

	Blocks    []*DecoderBlock
	FinalNorm *LayerNorm
}

// NewTransformerDecoder erzeugt einen Decoder-Stack. tokenEmbedder darf
// nicht nil sein; outputLayer nil bedeutet Identity.
func NewTransformerDecoder(tokenEmbedder TokenEmbedder, outputLayer OutputLayer, user hparams.Map) (*TransformerDecoder, error) {
	if tokenEmbedder == nil {
		return nil, fmt.Errorf("nn: decoder requires a token embedder")
	}
	if outputLayer == nil {
		outputLayer = Identity
	}

	hp, err := hparams.Resolve(user, DefaultDecoderHParams())
	if err != nil {
		return nil, err
	}

	dim := hp.Int("dim")
	numBlocks := hp.Int("num_blocks")
	if numBlocks <= 0 {
		return nil, &DimensionMismatchError{Module: hp.String("name"), Field: "num_blocks", Want: 1, Got: numBlocks}
	}

	dec := &TransformerDecoder{
		name:          hp.String("name", "decoder"),
		dim:           dim,
		tokenEmbedder: tokenEmbedder,
		outputLayer:   outputLayer,
	}
	attnConf := hp.Sub("multihead_attention").ToMap()
	hidden := hp.Int("hidden_dim")
	eps := hp.Float("eps")
	bias := hp.Bool("use_bias")

	for i := range numBlocks {
		block, err := newDecoderBlock(i, attnConf, dim, hidden, eps, bias)
		if err != nil {
			return nil, err
		}
		dec.Blocks = append(dec.Blocks, block)
	}

	if dec.FinalNorm, err = NewLayerNorm("final_layer_norm", dim, eps); err != nil {
		return nil, err
	}
	return dec, nil
}

// Dim gibt die Modell-Dimension des Decoders zurueck.
func (d *TransformerDecoder) Dim() int { return d.dim }

// Forward dekodiert eine Ziel-ID-Folge gegen Encoder-Zustaende memory
// und gibt die Ausgabe der Ausgabeprojektion zurueck.
func (d *TransformerDecoder) Forward(ids []int, memory *tensor.Dense) (*tensor.Dense, error) {
	x, err := d.tokenEmbedder(ids)
	if err != nil {
		return nil, err
	}
	if _, cols, err := dims2(x, "decoder embedding"); err != nil {
		return nil, err
	} else if cols != d.dim {
		return nil, &DimensionMismatchError{Module: d.name, Field: "embedding dimension", Want: d.dim, Got: cols}
	}

	h := x
	for _, block := range d.Blocks {
		if h, err = block.Forward(h, memory); err != nil {
			return nil, err
		}
	}
	if h, err = d.FinalNorm.Forward(h); err != nil {
		return nil, err
	}
	return d.outputLayer(h)
}

// Name implementiert Module.
func (d *TransformerDecoder) Name() string { return d.name }

// Parameters implementiert Module.
func (d *TransformerDecoder) Parameters() []*Parameter { return nil }

// Modules implementiert Module.
func (d *TransformerDecoder) Modules() []Module {
	mods := make([]Module, 0, len(d.Blocks)+1)
	for _, b := range d.Blocks {
		mods = append(mods, b)
	}
	return append(mods, d.FinalNorm)
}
