// Package t5 - T5 Encoder-Decoder-Modell
//
// Komponiert WordEmbedder, Transformer-Encoder und -Decoder zu einem
// Sequenz-zu-Sequenz-Modell. Die Embedding-Tabelle ist zwischen
// Encoder- und Decoder-Pfad geteilt; die Decoder-Ausgabe ist der rohe
// Zustand ohne Vokabular-Projektion.
//
// Hauptkomponenten:
// - EncoderDecoder: das komponierte Modell
// - DefaultHParams: Default-Schema der Architektur
// - ResetParameters: globale Re-Initialisierung der Gewichte
// - CheckpointRules: Abbildung auf HuggingFace-T5-Checkpoints
package t5

import (
	"strings"

	"github.com/pdevine/tensor"

	"github.com/asyml/texar-go/core"
	"github.com/asyml/texar-go/hparams"
	"github.com/asyml/texar-go/model"
	"github.com/asyml/texar-go/nn"
	"github.com/asyml/texar-go/pretrained"
)

func init() {
	model.Register("t5", New)
}

// DefaultHParams gibt das Default-Schema der T5-Architektur zurueck
// (T5-Base Geometrie).
func DefaultHParams() hparams.Map {
	embed := nn.DefaultEmbeddingHParams()
	embed["name"] = "word_embeddings"
	embed["dim"] = 768

	return hparams.Map{
		"name":                  "t5_encoder_decoder",
		"pretrained_model_name": nil,
		"vocab_size":            32128,
		"embed":                 embed,
		"encoder":               nn.DefaultEncoderHParams(),
		"decoder":               nn.DefaultDecoderHParams(),
		"initializer":           nil,
		hparams.NoTypecheckKey:  []string{"pretrained_model_name"},
	}
}

// EncoderDecoder ist das komponierte T5-Modell.
type EncoderDecoder struct {
	model.Base

	Embedder *nn.WordEmbedder
	Encoder  *nn.TransformerEncoder
	Decoder  *nn.TransformerDecoder
}

// New baut ein T5-Modell aus einer partiellen Konfiguration auf.
// Nennt die Konfiguration ein vortrainiertes Modell, ueberschreiben
// dessen strukturelle Hyperparameter die Nutzer-Werte, damit die
// Modul-Formen zum Checkpoint passen.
func New(user hparams.Map) (model.Model, error) {
	if name := presetName(user); name != "" {
		preset, err := pretrained.Lookup(name)
		if err != nil {
			return nil, err
		}
		user = overrideStructural(user, preset.HParams)
	}

	hp, err := hparams.Resolve(user, DefaultHParams())
	if err != nil {
		return nil, err
	}

	m := &EncoderDecoder{Base: model.NewBase(hp.String("name"), hp)}

	vocabSize := hp.Int("vocab_size")
	if m.Embedder, err = nn.NewWordEmbedder(hp.Sub("embed").ToMap(), vocabSize); err != nil {
		return nil, err
	}

	// Formen vor dem Stack-Aufbau pruefen: Encoder und Decoder muessen
	// in der Embedding-Dimension arbeiten
	for _, stack := range []string{"encoder", "decoder"} {
		if dim := hp.Sub(stack).Int("dim"); dim != m.Embedder.Dim() {
			return nil, &nn.DimensionMismatchError{
				Module: stack,
				Field:  "dim",
				Want:   m.Embedder.Dim(),
				Got:    dim,
			}
		}
	}

	if m.Encoder, err = nn.NewTransformerEncoder(hp.Sub("encoder").ToMap()); err != nil {
		return nil, err
	}
	if m.Decoder, err = nn.NewTransformerDecoder(m.Embedder.Embed, nn.Identity, hp.Sub("decoder").ToMap()); err != nil {
		return nil, err
	}

	if err := m.ResetParameters(); err != nil {
		return nil, err
	}
	return m, nil
}

// presetName liest den Preset-Namen aus der rohen Konfiguration
func presetName(user hparams.Map) string {
	if user == nil {
		return ""
	}
	if name, ok := user["pretrained_model_name"].(string); ok {
		return name
	}
	return ""
}

// overrideStructural legt die Preset-Overrides ueber die
// Nutzer-Konfiguration. Preset-Werte gewinnen, rekursiv pro Ebene.
func overrideStructural(user, overrides hparams.Map) hparams.Map {
	out := make(hparams.Map, len(user)+len(overrides))
	for key, val := range user {
		out[key] = val
	}
	for key, val := range overrides {
		sub, subOK := val.(hparams.Map)
		prev, prevOK := out[key].(hparams.Map)
		if subOK && prevOK {
			out[key] = overrideStructural(prev, sub)
			continue
		}
		out[key] = val
	}
	return out
}

// ResetParameters wendet den globalen Initializer der Konfiguration
// auf alle Gewichts-Blaetter an. LayerNorm-Parameter und Biases
// behalten ihre Konstruktions-Werte; geteilte Parameter werden genau
// einmal initialisiert. Ohne konfigurierten Initializer ist der Aufruf
// ein No-Op.
func (m *EncoderDecoder) ResetParameters() error {
	spec, _ := m.HParams().Get("initializer")
	if spec == nil {
		return nil
	}

	initializer, err := core.ResolveInitializer(spec)
	if err != nil {
		return err
	}

	seen := make(map[*nn.Parameter]struct{})
	for _, np := range nn.NamedParameters(m) {
		if np.Param.Name != "weight" || strings.Contains(np.Path, "layer_norm") {
			continue
		}
		if _, ok := seen[np.Param]; ok {
			continue
		}
		seen[np.Param] = struct{}{}

		if err := initializer(np.Param.Value); err != nil {
			return err
		}
	}
	return nil
}

// Forward kodiert die Encoder-Sequenz und dekodiert die
// Decoder-Sequenz dagegen. Rueckgabe ist [len(decoderIDs), dim].
func (m *EncoderDecoder) Forward(encoderIDs, decoderIDs []int) (*tensor.Dense, error) {
	embedded, err := m.Embedder.Embed(encoderIDs)
	if err != nil {
		return nil, err
	}
	memory, err := m.Encoder.Forward(embedded)
	if err != nil {
		return nil, err
	}
	return m.Decoder.Forward(decoderIDs, memory)
}

// Parameters implementiert nn.Module.
func (m *EncoderDecoder) Parameters() []*nn.Parameter { return nil }

// Modules implementiert nn.Module.
func (m *EncoderDecoder) Modules() []nn.Module {
	return []nn.Module{m.Embedder, m.Encoder, m.Decoder}
}
