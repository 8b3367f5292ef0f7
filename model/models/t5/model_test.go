// model_test.go - Unit Tests fuer das komponierte T5-Modell
package t5

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/asyml/texar-go/hparams"
	"github.com/asyml/texar-go/nn"
	"github.com/asyml/texar-go/pretrained"
)

// smallConf liefert eine kleine, schnelle Modell-Konfiguration
func smallConf() hparams.Map {
	return hparams.Map{
		"vocab_size": 6,
		"embed":      hparams.Map{"dim": 4},
		"encoder":    stackConf(4, 1, 2, 8),
		"decoder":    stackConf(4, 1, 2, 8),
	}
}

func stackConf(dim, blocks, heads, hidden int) hparams.Map {
	return hparams.Map{
		"dim":        dim,
		"num_blocks": blocks,
		"hidden_dim": hidden,
		"multihead_attention": hparams.Map{
			"num_heads":  heads,
			"num_units":  dim,
			"output_dim": dim,
		},
	}
}

func mustNew(t *testing.T, user hparams.Map) *EncoderDecoder {
	t.Helper()
	m, err := New(user)
	if err != nil {
		t.Fatalf("New fehlgeschlagen: %v", err)
	}
	return m.(*EncoderDecoder)
}

// TestForwardShape testet den Ende-zu-Ende-Durchlauf
func TestForwardShape(t *testing.T) {
	m := mustNew(t, smallConf())

	out, err := m.Forward([]int{1, 2, 3}, []int{4, 5})
	if err != nil {
		t.Fatalf("Forward fehlgeschlagen: %v", err)
	}

	shape := out.Shape()
	if shape[0] != 2 || shape[1] != 4 {
		t.Errorf("Shape = %v, erwartet [2 4]", shape)
	}
}

// TestEncoderDimMismatch testet dass abweichende Stack-Dimensionen die
// Konstruktion scheitern lassen, bevor Bloecke gebaut werden
func TestEncoderDimMismatch(t *testing.T) {
	conf := smallConf()
	conf["encoder"] = stackConf(8, 1, 2, 16)

	_, err := New(conf)

	var dimErr *nn.DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Fatalf("erwartet DimensionMismatchError, erhalten %v", err)
	}
	if dimErr.Module != "encoder" {
		t.Errorf("Modul = %q, erwartet %q", dimErr.Module, "encoder")
	}
}

// TestSharedEmbedding testet dass die Embedding-Tabelle genau einmal
// unter den trainierbaren Parametern erscheint
func TestSharedEmbedding(t *testing.T) {
	m := mustNew(t, smallConf())

	var count int
	for _, p := range nn.CollectTrainable(m) {
		if p == m.Embedder.Embedding {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Embedding-Tabelle %d-mal gesammelt, erwartet 1", count)
	}
}

// TestResetParametersSkipsLayerNorm testet die Re-Initialisierung:
// Gewichts-Blaetter erhalten den Initializer-Wert, LayerNorm-Parameter
// behalten ihre Konstruktions-Werte
func TestResetParametersSkipsLayerNorm(t *testing.T) {
	conf := smallConf()
	conf["initializer"] = hparams.Map{
		"type":   "constant",
		"kwargs": hparams.Map{"value": 0.5},
	}
	m := mustNew(t, conf)

	for _, np := range nn.NamedParameters(m) {
		data := np.Param.Data()
		switch {
		case strings.Contains(np.Path, "layer_norm"):
			want := float32(0)
			if np.Param.Name == "gamma" {
				want = 1
			}
			for _, v := range data {
				if v != want {
					t.Fatalf("%s = %v, erwartet %v (unangetastet)", np.Path, v, want)
				}
			}
		case np.Param.Name == "weight":
			for _, v := range data {
				if v != 0.5 {
					t.Fatalf("%s = %v, erwartet 0.5", np.Path, v)
				}
			}
		}
	}
}

// TestUnknownPretrainedName testet den Fehler bei unbekanntem Preset
func TestUnknownPretrainedName(t *testing.T) {
	conf := smallConf()
	conf["pretrained_model_name"] = "Nicht-Existent"

	_, err := New(conf)

	var unknownErr *pretrained.UnknownPretrainedModelError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("erwartet UnknownPretrainedModelError, erhalten %v", err)
	}
}

// TestOverrideStructural testet dass Preset-Werte Nutzer-Werte schlagen
func TestOverrideStructural(t *testing.T) {
	preset, err := pretrained.Lookup("T5-Small")
	if err != nil {
		t.Fatalf("Lookup fehlgeschlagen: %v", err)
	}

	user := hparams.Map{
		"vocab_size": 5,
		"embed":      hparams.Map{"dropout_rate": 0.3},
		"encoder":    hparams.Map{"num_blocks": 99},
	}
	merged := overrideStructural(user, preset.HParams)

	if merged["vocab_size"] != 32128 {
		t.Errorf("vocab_size = %v, erwartet 32128", merged["vocab_size"])
	}
	if got := merged["encoder"].(hparams.Map)["num_blocks"]; got != 6 {
		t.Errorf("encoder.num_blocks = %v, erwartet 6", got)
	}
	// Nicht-strukturelle Nutzer-Werte bleiben erhalten
	if got := merged["embed"].(hparams.Map)["dropout_rate"]; got != 0.3 {
		t.Errorf("embed.dropout_rate = %v, erwartet 0.3", got)
	}
}

// fakeCheckpoint baut einen In-Memory-Checkpoint der exakt zu den
// Lade-Regeln des Modells passt
func fakeCheckpoint(t *testing.T, m *EncoderDecoder) (pretrained.Checkpoint, map[string][]float32) {
	t.Helper()

	params := make(map[string][]int)
	prefix := m.Name() + "."
	for _, np := range nn.NamedParameters(m) {
		params[strings.TrimPrefix(np.Path, prefix)] = np.Param.Shape()
	}

	tensors := make(map[string]*pretrained.Tensor)
	values := make(map[string][]float32)
	for i, rule := range m.CheckpointRules() {
		shape := slices.Clone(params[rule.Param])
		if shape == nil {
			t.Fatalf("Regel referenziert unbekannten Parameter %q", rule.Param)
		}
		if strings.Contains(rule.Tag, ",transpose") {
			slices.Reverse(shape)
		}

		n := 1
		for _, d := range shape {
			n *= d
		}
		data := make([]float32, n)
		for j := range data {
			data[j] = float32(i) + float32(j)*0.001
		}

		name := strings.Split(rule.Tag, ",")[0]
		tensors[name] = &pretrained.Tensor{Shape: shape, Data: data}
		values[name] = data
	}
	return pretrained.NewCheckpoint(tensors), values
}

// TestApplyCheckpoint testet das Laden inklusive Transposition
func TestApplyCheckpoint(t *testing.T) {
	m := mustNew(t, smallConf())
	ckpt, values := fakeCheckpoint(t, m)

	result, err := pretrained.Apply(m, m.CheckpointRules(), ckpt)
	if err != nil {
		t.Fatalf("Apply fehlgeschlagen: %v", err)
	}
	if len(result.Missing) != 0 {
		t.Fatalf("fehlende Tensoren: %v", result.Missing)
	}
	if len(result.Loaded) != len(m.CheckpointRules()) {
		t.Errorf("Loaded = %d, erwartet %d", len(result.Loaded), len(m.CheckpointRules()))
	}

	// Embedding wird unveraendert uebernommen
	shared := values["shared.weight"]
	got := m.Embedder.Embedding.Data()
	for i := range shared {
		if got[i] != shared[i] {
			t.Fatalf("Embedding[%d] = %v, erwartet %v", i, got[i], shared[i])
		}
	}

	// Projektions-Gewichte werden von [out, in] nach [in, out] transponiert
	src := values["encoder.block.0.layer.0.SelfAttention.q.weight"]
	weight := m.Encoder.Blocks[0].SelfAttention.Query.Weight.Data()
	for r := range 4 {
		for c := range 4 {
			if weight[c*4+r] != src[r*4+c] {
				t.Fatalf("Query-Gewicht nicht transponiert: [%d %d]", r, c)
			}
		}
	}
}

// TestApplyAtomic testet dass ein Form-Fehler das Modell unveraendert laesst
func TestApplyAtomic(t *testing.T) {
	m := mustNew(t, smallConf())
	ckpt, _ := fakeCheckpoint(t, m)

	// Einen Tensor mit falscher Form ueberschreiben
	tensors := make(map[string]*pretrained.Tensor)
	for _, name := range ckpt.Names() {
		tensor, _ := ckpt.Tensor(name)
		tensors[name] = tensor
	}
	tensors["decoder.final_layer_norm.weight"] = &pretrained.Tensor{
		Shape: []int{5},
		Data:  make([]float32, 5),
	}
	broken := pretrained.NewCheckpoint(tensors)

	before := slices.Clone(m.Embedder.Embedding.Data())

	_, err := pretrained.Apply(m, m.CheckpointRules(), broken)
	var shapeErr *pretrained.ShapeMismatchError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("erwartet ShapeMismatchError, erhalten %v", err)
	}

	if !slices.Equal(before, m.Embedder.Embedding.Data()) {
		t.Error("Modell wurde trotz Validierungsfehler veraendert")
	}
}
