// Package core - Initializer-Registry und eingebaute Initializer
//
// Dieses Paket loest benannte Initializer-Spezifikationen zur Laufzeit
// gegen eine Registry auf (analog zur Architektur-Registry in model).
//
// Hauptkomponenten:
// - Initializer: Funktion die einen Parameter-Tensor in-place belegt
// - RegisterInitializer: registriert eine Factory unter einem Namen
// - ResolveInitializer: loest nil/Name/Spezifikations-Baum auf
// - Eingebaute Initializer: uniform, normal, constant, xavier_uniform,
//   variance_scaling
//
// Eine nil-Spezifikation bedeutet "kein Initializer"; die Default-Policy
// (Xavier/Glorot uniform) liegt beim aufrufenden Modul.
package core

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/pdevine/tensor"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/asyml/texar-go/hparams"
)

// Initializer belegt einen frisch allokierten Float32-Tensor in-place.
type Initializer func(t *tensor.Dense) error

// Factory erzeugt einen Initializer aus Schluesselwort-Argumenten.
type Factory func(kwargs map[string]any) (Initializer, error)

// InitializerResolutionError zeigt an dass ein benannter Initializer
// nicht gefunden wurde.
type InitializerResolutionError struct {
	Name string
}

func (e *InitializerResolutionError) Error() string {
	return fmt.Sprintf("core: initializer %q not found", e.Name)
}

var initializers = make(map[string]Factory)

// RegisterInitializer registriert eine Initializer-Factory unter einem
// Namen. Doppelte Registrierung ist ein Programmierfehler.
func RegisterInitializer(name string, f Factory) {
	if _, ok := initializers[name]; ok {
		panic("core: initializer already registered: " + name)
	}

	initializers[name] = f
}

// ResolveInitializer loest eine Initializer-Spezifikation auf.
//
// Akzeptiert werden: nil (kein Initializer), ein Name als String, ein
// Spezifikations-Baum {"type": name, "kwargs": {...}} (als Map oder
// bereits aufgeloeste HParams) sowie eine Initializer-Funktion direkt.
func ResolveInitializer(spec any) (Initializer, error) {
	switch s := spec.(type) {
	case nil:
		return nil, nil
	case Initializer:
		return s, nil
	case func(t *tensor.Dense) error:
		return Initializer(s), nil
	case string:
		return resolveNamed(s, nil)
	case hparams.Map:
		return resolveSpecMap(map[string]any(s))
	case map[string]any:
		return resolveSpecMap(s)
	case *hparams.HParams:
		return resolveSpecMap(map[string]any(s.ToMap()))
	default:
		return nil, fmt.Errorf("core: unsupported initializer specification %T", spec)
	}
}

func resolveSpecMap(spec map[string]any) (Initializer, error) {
	name, ok := spec["type"].(string)
	if !ok {
		return nil, fmt.Errorf("core: initializer specification is missing a %q string", "type")
	}

	var kwargs map[string]any
	switch kw := spec["kwargs"].(type) {
	case nil:
	case hparams.Map:
		kwargs = map[string]any(kw)
	case map[string]any:
		kwargs = kw
	case *hparams.HParams:
		kwargs = map[string]any(kw.ToMap())
	default:
		return nil, fmt.Errorf("core: initializer kwargs must be a map, got %T", kw)
	}

	return resolveNamed(name, kwargs)
}

func resolveNamed(name string, kwargs map[string]any) (Initializer, error) {
	f, ok := initializers[name]
	if !ok {
		return nil, &InitializerResolutionError{Name: name}
	}

	return f(kwargs)
}

func init() {
	RegisterInitializer("uniform", func(kwargs map[string]any) (Initializer, error) {
		if err := checkKwargs(kwargs, "a", "b", "seed"); err != nil {
			return nil, err
		}
		a, err := kwFloat(kwargs, "a", -0.1)
		if err != nil {
			return nil, err
		}
		b, err := kwFloat(kwargs, "b", 0.1)
		if err != nil {
			return nil, err
		}
		src, err := kwSource(kwargs)
		if err != nil {
			return nil, err
		}
		if b < a {
			return nil, fmt.Errorf("core: uniform initializer requires a <= b, got [%v, %v]", a, b)
		}
		return drawInitializer(src, func(src rand.Source) func() float64 {
			return distuv.Uniform{Min: a, Max: b, Src: src}.Rand
		}), nil
	})

	RegisterInitializer("normal", func(kwargs map[string]any) (Initializer, error) {
		if err := checkKwargs(kwargs, "mean", "std", "seed"); err != nil {
			return nil, err
		}
		mean, err := kwFloat(kwargs, "mean", 0)
		if err != nil {
			return nil, err
		}
		std, err := kwFloat(kwargs, "std", 1)
		if err != nil {
			return nil, err
		}
		src, err := kwSource(kwargs)
		if err != nil {
			return nil, err
		}
		if std <= 0 {
			return nil, fmt.Errorf("core: normal initializer requires std > 0, got %v", std)
		}
		return drawInitializer(src, func(src rand.Source) func() float64 {
			return distuv.Normal{Mu: mean, Sigma: std, Src: src}.Rand
		}), nil
	})

	// constant akzeptiert "val" (Torch-Konvention) und "value" als Alias
	RegisterInitializer("constant", func(kwargs map[string]any) (Initializer, error) {
		if err := checkKwargs(kwargs, "val", "value"); err != nil {
			return nil, err
		}
		key := "val"
		if _, ok := kwargs["value"]; ok {
			if _, both := kwargs["val"]; both {
				return nil, fmt.Errorf("core: constant initializer takes either %q or %q, not both", "val", "value")
			}
			key = "value"
		}
		v, err := kwFloat(kwargs, key, 0)
		if err != nil {
			return nil, err
		}
		val := float32(v)
		return func(t *tensor.Dense) error {
			data, err := float32Data(t)
			if err != nil {
				return err
			}
			for i := range data {
				data[i] = val
			}
			return nil
		}, nil
	})

	xavier := func(kwargs map[string]any) (Initializer, error) {
		if err := checkKwargs(kwargs, "gain", "seed"); err != nil {
			return nil, err
		}
		gain, err := kwFloat(kwargs, "gain", 1)
		if err != nil {
			return nil, err
		}
		src, err := kwSource(kwargs)
		if err != nil {
			return nil, err
		}
		return func(t *tensor.Dense) error {
			fanIn, fanOut := fans(t.Shape())
			bound := gain * math.Sqrt(6/float64(fanIn+fanOut))
			return fill(t, distuv.Uniform{Min: -bound, Max: bound, Src: src}.Rand)
		}, nil
	}
	RegisterInitializer("xavier_uniform", xavier)
	RegisterInitializer("glorot_uniform", xavier)

	RegisterInitializer("variance_scaling", func(kwargs map[string]any) (Initializer, error) {
		if err := checkKwargs(kwargs, "scale", "mode", "distribution", "seed"); err != nil {
			return nil, err
		}
		scale, err := kwFloat(kwargs, "scale", 1)
		if err != nil {
			return nil, err
		}
		mode, err := kwString(kwargs, "mode", "fan_in")
		if err != nil {
			return nil, err
		}
		distribution, err := kwString(kwargs, "distribution", "uniform")
		if err != nil {
			return nil, err
		}
		src, err := kwSource(kwargs)
		if err != nil {
			return nil, err
		}
		if scale <= 0 {
			return nil, fmt.Errorf("core: variance_scaling requires scale > 0, got %v", scale)
		}
		switch mode {
		case "fan_in", "fan_out", "fan_avg":
		default:
			return nil, fmt.Errorf("core: unknown variance_scaling mode %q", mode)
		}
		switch distribution {
		case "uniform", "normal":
		default:
			return nil, fmt.Errorf("core: unknown variance_scaling distribution %q", distribution)
		}

		return func(t *tensor.Dense) error {
			fanIn, fanOut := fans(t.Shape())
			var n float64
			switch mode {
			case "fan_in":
				n = float64(fanIn)
			case "fan_out":
				n = float64(fanOut)
			default:
				n = float64(fanIn+fanOut) / 2
			}

			variance := scale / math.Max(n, 1)
			if distribution == "uniform" {
				bound := math.Sqrt(3 * variance)
				return fill(t, distuv.Uniform{Min: -bound, Max: bound, Src: src}.Rand)
			}
			return fill(t, distuv.Normal{Mu: 0, Sigma: math.Sqrt(variance), Src: src}.Rand)
		}, nil
	})
}

// XavierUniform ist die Default-Initialisierung fuer Embedding- und
// Gewichtsmatrizen wenn keine Spezifikation angegeben ist.
func XavierUniform() Initializer {
	init, err := resolveNamed("xavier_uniform", nil)
	if err != nil {
		panic(err)
	}
	return init
}

func drawInitializer(src rand.Source, dist func(rand.Source) func() float64) Initializer {
	return func(t *tensor.Dense) error {
		return fill(t, dist(src))
	}
}

// fill belegt das Float32-Backing eines Dense-Tensors mit Ziehungen.
func fill(t *tensor.Dense, draw func() float64) error {
	data, err := float32Data(t)
	if err != nil {
		return err
	}
	for i := range data {
		data[i] = float32(draw())
	}
	return nil
}

func float32Data(t *tensor.Dense) ([]float32, error) {
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("core: initializers require a float32 tensor, got %v", t.Dtype())
	}
	return data, nil
}

// fans bestimmt fan-in und fan-out eines Parameters in Torch-Konvention:
// fan-out ist die erste Achse, fan-in das Produkt der restlichen Achsen.
func fans(shape tensor.Shape) (fanIn, fanOut int) {
	if len(shape) == 0 {
		return 1, 1
	}
	if len(shape) == 1 {
		return shape[0], shape[0]
	}

	fanOut = shape[0]
	fanIn = 1
	for _, dim := range shape[1:] {
		fanIn *= dim
	}
	return fanIn, fanOut
}

// checkKwargs weist Schluesselwort-Argumente ausserhalb der erlaubten
// Menge zurueck. Ein vertipptes kwarg darf nie stillschweigend auf den
// Default zurueckfallen.
func checkKwargs(kwargs map[string]any, allowed ...string) error {
	for key := range kwargs {
		if !slices.Contains(allowed, key) {
			return fmt.Errorf("core: unknown initializer kwarg %q (allowed: %s)", key, strings.Join(allowed, ", "))
		}
	}
	return nil
}

func kwFloat(kwargs map[string]any, key string, defaultValue float64) (float64, error) {
	v, ok := kwargs[key]
	if !ok {
		return defaultValue, nil
	}
	switch v := v.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("core: initializer kwarg %q must be numeric, got %T", key, v)
	}
}

func kwString(kwargs map[string]any, key, defaultValue string) (string, error) {
	v, ok := kwargs[key]
	if !ok {
		return defaultValue, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("core: initializer kwarg %q must be a string, got %T", key, v)
	}
	return s, nil
}

// kwSource liefert eine deterministische Quelle wenn "seed" gesetzt ist,
// sonst nil (globale Quelle von x/exp/rand).
func kwSource(kwargs map[string]any) (rand.Source, error) {
	v, ok := kwargs["seed"]
	if !ok {
		return nil, nil
	}
	switch v := v.(type) {
	case int:
		return rand.NewSource(uint64(v)), nil
	case int64:
		return rand.NewSource(uint64(v)), nil
	case uint64:
		return rand.NewSource(v), nil
	case float64:
		return rand.NewSource(uint64(v)), nil
	default:
		return nil, fmt.Errorf("core: initializer kwarg %q must be an integer, got %T", "seed", v)
	}
}
