// loader.go - Atomisches Uebertragen von Checkpoint-Gewichten
//
// Apply arbeitet zweiphasig: erst werden alle Regeln gegen Modul-Graph
// und Checkpoint validiert (Parameter vorhanden, Formen kompatibel),
// dann werden die Daten kopiert. Schlaegt die Validierung fehl, bleibt
// das Modell vollstaendig unveraendert.
package pretrained

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/asyml/texar-go/nn"
)

// ShapeMismatchError meldet eine Form-Abweichung zwischen Parameter
// und Checkpoint-Tensor.
type ShapeMismatchError struct {
	Param  string
	Source string
	Want   []int
	Got    []int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("pretrained: shape mismatch for %q (checkpoint %q): want %v, got %v",
		e.Param, e.Source, e.Want, e.Got)
}

// LoadResult fasst einen Ladevorgang zusammen.
type LoadResult struct {
	// Loaded sind die Parameter-Pfade die befuellt wurden
	Loaded []string

	// Missing sind Regeln ohne Gegenstueck im Checkpoint
	Missing []string
}

// plannedCopy ist eine validierte Kopier-Operation
type plannedCopy struct {
	path      string
	param     *nn.Parameter
	source    *Tensor
	transpose bool
}

// Apply uebertraegt Checkpoint-Tensoren gemaess der Regeln in die
// Parameter des Moduls. Regeln ohne Gegenstueck im Checkpoint sind
// kein Fehler und werden im Ergebnis gemeldet. Gebundene Parameter
// werden genau einmal beschrieben; die erste Regel gewinnt, spaetere
// Regeln auf denselben Parameter werden trotzdem validiert.
func Apply(m nn.Module, rules []Rule, ckpt Checkpoint) (*LoadResult, error) {
	params := parametersByPath(m)

	result := &LoadResult{}
	written := make(map[*nn.Parameter]struct{})
	var plan []plannedCopy

	// Phase 1: alles validieren, noch nichts schreiben
	for _, rule := range rules {
		param, ok := params[rule.Param]
		if !ok {
			return nil, fmt.Errorf("pretrained: rule references unknown parameter %q", rule.Param)
		}

		tag := parseTag(rule.Tag)
		source, sourceName, ok := tag.resolve(ckpt)
		if !ok {
			result.Missing = append(result.Missing, rule.Param)
			continue
		}
		want := []int(param.Shape())
		got := source.Shape
		if tag.transpose {
			got = reversed(got)
		}
		if !slices.Equal(want, got) || source.NumElements() != len(param.Data()) {
			return nil, &ShapeMismatchError{
				Param:  rule.Param,
				Source: sourceName,
				Want:   want,
				Got:    source.Shape,
			}
		}

		// Gebundene Parameter: erst nach der Form-Pruefung ueberspringen,
		// damit auch spaetere Regeln validiert werden
		if _, ok := written[param]; ok {
			continue
		}
		written[param] = struct{}{}
		plan = append(plan, plannedCopy{path: rule.Param, param: param, source: source, transpose: tag.transpose})
	}

	// Phase 2: kopieren
	for _, op := range plan {
		if op.transpose {
			copyTransposed(op.param.Data(), op.source)
		} else {
			copy(op.param.Data(), op.source.Data)
		}
		result.Loaded = append(result.Loaded, op.path)
	}

	slog.Debug("checkpoint angewendet", "loaded", len(result.Loaded), "missing", len(result.Missing))
	return result, nil
}

// Load laedt einen Preset-Checkpoint herunter und wendet ihn auf das
// Modul an.
func Load(ctx context.Context, presetName string, m nn.Module, rules []Rule) (*LoadResult, error) {
	preset, err := Lookup(presetName)
	if err != nil {
		return nil, err
	}

	slog.Info("lade vortrainiertes modell", "preset", presetName, "repo", preset.ModelID)
	path, err := preset.Fetch(ctx, NewClient())
	if err != nil {
		return nil, err
	}

	ckpt, err := Open(path)
	if err != nil {
		return nil, err
	}
	return Apply(m, rules, ckpt)
}

// parametersByPath indiziert die Parameter des Moduls ueber ihre Pfade
// unterhalb des Wurzel-Namens.
func parametersByPath(m nn.Module) map[string]*nn.Parameter {
	prefix := m.Name() + "."
	out := make(map[string]*nn.Parameter)
	for _, np := range nn.NamedParameters(m) {
		out[strings.TrimPrefix(np.Path, prefix)] = np.Param
	}
	return out
}

// copyTransposed kopiert einen 2D-Tensor im [out, in]-Layout in einen
// Parameter im [in, out]-Layout.
func copyTransposed(dst []float32, source *Tensor) {
	if len(source.Shape) != 2 {
		copy(dst, source.Data)
		return
	}
	rows, cols := source.Shape[0], source.Shape[1]
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			dst[c*rows+r] = source.Data[r*cols+c]
		}
	}
}

func reversed(shape []int) []int {
	out := make([]int, len(shape))
	for i, dim := range shape {
		out[len(shape)-1-i] = dim
	}
	return out
}
