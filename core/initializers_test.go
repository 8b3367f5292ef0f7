// initializers_test.go - Unit Tests fuer die Initializer-Registry
package core

import (
	"errors"
	"math"
	"testing"

	"github.com/pdevine/tensor"

	"github.com/asyml/texar-go/hparams"
)

func newDense(dims ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(dims...), tensor.Of(tensor.Float32))
}

// TestResolveInitializerNil testet dass nil "kein Initializer" bedeutet
func TestResolveInitializerNil(t *testing.T) {
	init, err := ResolveInitializer(nil)
	if err != nil {
		t.Fatalf("ResolveInitializer(nil) fehlgeschlagen: %v", err)
	}
	if init != nil {
		t.Error("ResolveInitializer(nil) sollte nil zurueckgeben")
	}
}

// TestResolveInitializerByName testet die Aufloesung per Name
func TestResolveInitializerByName(t *testing.T) {
	for _, name := range []string{"uniform", "normal", "constant", "xavier_uniform", "glorot_uniform", "variance_scaling"} {
		t.Run(name, func(t *testing.T) {
			init, err := ResolveInitializer(name)
			if err != nil {
				t.Fatalf("ResolveInitializer(%q) fehlgeschlagen: %v", name, err)
			}
			if init == nil {
				t.Fatal("Initializer ist nil")
			}
			if err := init(newDense(4, 8)); err != nil {
				t.Errorf("Initializer-Anwendung fehlgeschlagen: %v", err)
			}
		})
	}
}

// TestResolveInitializerUnknown testet den Fehlerfall unbekannter Namen
func TestResolveInitializerUnknown(t *testing.T) {
	_, err := ResolveInitializer("does_not_exist")

	var resErr *InitializerResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("erwartet InitializerResolutionError, erhalten %v", err)
	}
	if resErr.Name != "does_not_exist" {
		t.Errorf("Name = %q, erwartet %q", resErr.Name, "does_not_exist")
	}
}

// TestResolveInitializerSpec testet Spezifikations-Baeume mit kwargs
func TestResolveInitializerSpec(t *testing.T) {
	init, err := ResolveInitializer(hparams.Map{
		"type":   "constant",
		"kwargs": hparams.Map{"val": 2.5},
	})
	if err != nil {
		t.Fatalf("ResolveInitializer fehlgeschlagen: %v", err)
	}

	d := newDense(3, 3)
	if err := init(d); err != nil {
		t.Fatalf("Initializer-Anwendung fehlgeschlagen: %v", err)
	}
	for i, v := range d.Data().([]float32) {
		if v != 2.5 {
			t.Fatalf("Wert[%d] = %v, erwartet 2.5", i, v)
		}
	}
}

// TestConstantValueAlias testet dass constant neben "val" auch das
// Alias "value" akzeptiert
func TestConstantValueAlias(t *testing.T) {
	init, err := ResolveInitializer(hparams.Map{
		"type":   "constant",
		"kwargs": hparams.Map{"value": 0.5},
	})
	if err != nil {
		t.Fatalf("ResolveInitializer fehlgeschlagen: %v", err)
	}

	d := newDense(2, 2)
	if err := init(d); err != nil {
		t.Fatalf("Initializer-Anwendung fehlgeschlagen: %v", err)
	}
	for i, v := range d.Data().([]float32) {
		if v != 0.5 {
			t.Fatalf("Wert[%d] = %v, erwartet 0.5", i, v)
		}
	}
}

// TestInitializerKwargValidation testet dass unbekannte oder falsch
// typisierte kwargs ein Fehler sind statt still auf Defaults zu fallen
func TestInitializerKwargValidation(t *testing.T) {
	tests := []struct {
		name string
		spec hparams.Map
	}{
		{
			name: "unbekanntes kwarg",
			spec: hparams.Map{"type": "normal", "kwargs": hparams.Map{"stddev": 2.0}},
		},
		{
			name: "falscher Werttyp",
			spec: hparams.Map{"type": "normal", "kwargs": hparams.Map{"std": "wide"}},
		},
		{
			name: "val und value gleichzeitig",
			spec: hparams.Map{"type": "constant", "kwargs": hparams.Map{"val": 1.0, "value": 2.0}},
		},
		{
			name: "unbekannter mode",
			spec: hparams.Map{"type": "variance_scaling", "kwargs": hparams.Map{"mode": "fan_max"}},
		},
		{
			name: "seed als String",
			spec: hparams.Map{"type": "uniform", "kwargs": hparams.Map{"seed": "7"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ResolveInitializer(tt.spec); err == nil {
				t.Errorf("ResolveInitializer(%v) sollte fehlschlagen", tt.spec)
			}
		})
	}
}

// TestUniformBounds testet dass uniform-Ziehungen im Intervall liegen
func TestUniformBounds(t *testing.T) {
	init, err := ResolveInitializer(hparams.Map{
		"type":   "uniform",
		"kwargs": hparams.Map{"a": -0.5, "b": 0.5, "seed": 7},
	})
	if err != nil {
		t.Fatalf("ResolveInitializer fehlgeschlagen: %v", err)
	}

	d := newDense(16, 16)
	if err := init(d); err != nil {
		t.Fatalf("Initializer-Anwendung fehlgeschlagen: %v", err)
	}

	var nonzero bool
	for _, v := range d.Data().([]float32) {
		if v < -0.5 || v > 0.5 {
			t.Fatalf("Wert %v ausserhalb [-0.5, 0.5]", v)
		}
		if v != 0 {
			nonzero = true
		}
	}
	if !nonzero {
		t.Error("alle Werte sind 0, Initializer wurde nicht angewendet")
	}
}

// TestXavierUniformBounds testet die Glorot-Schranke fuer 2D-Parameter
func TestXavierUniformBounds(t *testing.T) {
	d := newDense(32, 64)
	if err := XavierUniform()(d); err != nil {
		t.Fatalf("XavierUniform fehlgeschlagen: %v", err)
	}

	bound := math.Sqrt(6.0 / float64(32+64))
	for _, v := range d.Data().([]float32) {
		if math.Abs(float64(v)) > bound+1e-6 {
			t.Fatalf("Wert %v ausserhalb der Glorot-Schranke %v", v, bound)
		}
	}
}

// TestRegisterInitializerCustom testet benutzerregistrierte Initializer
func TestRegisterInitializerCustom(t *testing.T) {
	RegisterInitializer("test_ones", func(kwargs map[string]any) (Initializer, error) {
		return func(d *tensor.Dense) error {
			data := d.Data().([]float32)
			for i := range data {
				data[i] = 1
			}
			return nil
		}, nil
	})

	init, err := ResolveInitializer("test_ones")
	if err != nil {
		t.Fatalf("ResolveInitializer fehlgeschlagen: %v", err)
	}

	d := newDense(2, 2)
	if err := init(d); err != nil {
		t.Fatalf("Initializer-Anwendung fehlgeschlagen: %v", err)
	}
	for _, v := range d.Data().([]float32) {
		if v != 1 {
			t.Fatalf("Wert = %v, erwartet 1", v)
		}
	}
}

// TestRegisterInitializerDuplicate testet die Doppelregistrierungs-Panik
func TestRegisterInitializerDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("doppelte Registrierung sollte panicen")
		}
	}()
	RegisterInitializer("uniform", func(map[string]any) (Initializer, error) { return nil, nil })
}
