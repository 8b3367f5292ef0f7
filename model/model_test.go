// model_test.go - Unit Tests fuer die Architektur-Registry
package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pdevine/tensor"

	"github.com/asyml/texar-go/hparams"
	"github.com/asyml/texar-go/nn"
)

// fakeModel ist eine minimale Modell-Familie fuer Registry-Tests.
type fakeModel struct {
	Base
	invalid bool
}

func (m *fakeModel) Forward(encoderIDs, decoderIDs []int) (*tensor.Dense, error) {
	return nil, nil
}

func (m *fakeModel) Parameters() []*nn.Parameter { return nil }
func (m *fakeModel) Modules() []nn.Module        { return nil }

func (m *fakeModel) Validate() error {
	if m.invalid {
		return fmt.Errorf("fake: invalid configuration")
	}
	return nil
}

func newFake(user hparams.Map) (Model, error) {
	hp, err := hparams.Resolve(user, hparams.Map{"name": "fake", "invalid": false})
	if err != nil {
		return nil, err
	}
	return &fakeModel{Base: NewBase(hp.String("name"), hp), invalid: hp.Bool("invalid")}, nil
}

func init() {
	Register("fake", newFake)
}

// TestNewUnsupportedModel testet den Fehler bei unbekannter Architektur
func TestNewUnsupportedModel(t *testing.T) {
	if _, err := New("does-not-exist", nil); !errors.Is(err, ErrUnsupportedModel) {
		t.Fatalf("erwartet ErrUnsupportedModel, erhalten %v", err)
	}
}

// TestNewRegistered testet Konstruktion ueber die Registry
func TestNewRegistered(t *testing.T) {
	m, err := New("fake", hparams.Map{"name": "mein-modell"})
	if err != nil {
		t.Fatalf("New fehlgeschlagen: %v", err)
	}
	if m.Name() != "mein-modell" {
		t.Errorf("Name = %q, erwartet %q", m.Name(), "mein-modell")
	}
	if m.HParams() == nil {
		t.Error("HParams ist nil")
	}
}

// TestNewInvalidConfig testet dass Konfigurationsfehler durchgereicht werden
func TestNewInvalidConfig(t *testing.T) {
	_, err := New("fake", hparams.Map{"unbekannt": 1})

	var cfgErr *hparams.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("erwartet ConfigError, erhalten %v", err)
	}
}

// TestValidatorRuns testet dass New das optionale Validator-Interface prueft
func TestValidatorRuns(t *testing.T) {
	if _, err := New("fake", hparams.Map{"invalid": true}); err == nil {
		t.Error("New mit fehlschlagender Validierung sollte einen Fehler geben")
	}
}

// TestRegisterDuplicatePanics testet die Doppel-Registrierung
func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("doppelte Registrierung sollte panicen")
		}
	}()
	Register("fake", newFake)
}

// TestArchitectures testet die Namens-Liste
func TestArchitectures(t *testing.T) {
	var found bool
	for _, name := range Architectures() {
		if name == "fake" {
			found = true
		}
	}
	if !found {
		t.Error("Architectures enthaelt 'fake' nicht")
	}
}
