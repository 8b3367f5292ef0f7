// presets.go - Registry bekannter vortrainierter Modelle
//
// Jeder Preset bindet einen Namen an ein Hub-Repository und an die
// strukturellen Hyperparameter der Architektur. Die strukturellen
// Werte ueberschreiben beim Aufbau jede Nutzer-Konfiguration, damit
// die Modul-Formen zum Checkpoint passen.
package pretrained

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/asyml/texar-go/hparams"
)

// Standard-Dateinamen in Hub-Repositories
const (
	SafetensorsFile = "model.safetensors"
	TorchWeightFile = "pytorch_model.bin"
	ConfigFile      = "config.json"
)

// UnknownPretrainedModelError meldet einen unbekannten Preset-Namen.
type UnknownPretrainedModelError struct {
	Name string
}

func (e *UnknownPretrainedModelError) Error() string {
	return fmt.Sprintf("pretrained: unknown pretrained model %q", e.Name)
}

// Preset beschreibt ein bekanntes vortrainiertes Modell.
type Preset struct {
	Pattern     string
	ModelID     string
	Checkpoint  string
	ExtraFiles  []string
	Description string

	// Strukturelle Overrides fuer die Modell-Konfiguration
	HParams hparams.Map
}

// Presets enthaelt alle bekannten vortrainierten Modelle
var Presets = map[string]Preset{
	"T5-Small": newT5Preset("T5-Small", "google-t5/t5-small", 512, 6, 8, 2048,
		"T5 Small - 60M Parameter Encoder-Decoder"),
	"T5-Base": newT5Preset("T5-Base", "google-t5/t5-base", 768, 12, 12, 3072,
		"T5 Base - 220M Parameter Encoder-Decoder"),
}

func newT5Preset(pattern, modelID string, dim, numBlocks, numHeads, hiddenDim int, desc string) Preset {
	stack := hparams.Map{
		"dim":        dim,
		"num_blocks": numBlocks,
		"hidden_dim": hiddenDim,
		"multihead_attention": hparams.Map{
			"num_heads":  numHeads,
			"num_units":  dim,
			"output_dim": dim,
		},
	}
	return Preset{
		Pattern:     pattern,
		ModelID:     modelID,
		Checkpoint:  SafetensorsFile,
		ExtraFiles:  []string{ConfigFile},
		Description: desc,
		HParams: hparams.Map{
			"vocab_size": 32128,
			"embed":      hparams.Map{"dim": dim},
			"encoder":    stack,
			"decoder": hparams.Map{
				"dim":        dim,
				"num_blocks": numBlocks,
				"hidden_dim": hiddenDim,
				"multihead_attention": hparams.Map{
					"num_heads":  numHeads,
					"num_units":  dim,
					"output_dim": dim,
				},
			},
		},
	}
}

// Lookup sucht einen Preset anhand des Namens.
// Exakte Treffer gehen vor; Patterns mit "*" werden als Glob geprueft.
func Lookup(name string) (*Preset, error) {
	if preset, ok := Presets[name]; ok {
		return &preset, nil
	}
	for pattern, preset := range Presets {
		if matchPattern(pattern, name) {
			return &preset, nil
		}
	}
	return nil, &UnknownPretrainedModelError{Name: name}
}

// IsKnown prueft ob ein Preset-Name bekannt ist
func IsKnown(name string) bool {
	_, err := Lookup(name)
	return err == nil
}

// PresetNames gibt alle registrierten Preset-Namen sortiert zurueck
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// matchPattern prueft ob ein Name einem Glob-Pattern entspricht
func matchPattern(pattern, name string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == name
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	matched, _ := filepath.Match(pattern, name)
	return matched
}

// Fetch laedt Checkpoint und Begleitdateien eines Presets in den Cache
// und gibt den lokalen Pfad der Checkpoint-Datei zurueck.
func (p *Preset) Fetch(ctx context.Context, c *Client) (string, error) {
	files := append([]string{p.Checkpoint}, p.ExtraFiles...)
	paths, err := c.FetchAll(ctx, p.ModelID, files)
	if err != nil {
		return "", err
	}
	return paths[0], nil
}
