// Package model - Model-Interface und Architektur-Registry
//
// Dieses Paket definiert das Model-Interface fuer komponierte
// Encoder-Decoder-Modelle und stellt Funktionen zur Konstruktion ueber
// eine Architektur-Registry bereit.
//
// Hauptkomponenten:
// - Model: Interface fuer alle Modell-Familien
// - Base: Basis-Implementierung fuer gemeinsame Funktionalitaet
// - Register: Registriert Modell-Konstruktoren
// - New: Erstellt neue Model-Instanzen aus einer Konfiguration
package model

import (
	"errors"

	"github.com/pdevine/tensor"

	"github.com/asyml/texar-go/hparams"
	"github.com/asyml/texar-go/nn"
)

// Fehler-Definitionen
var (
	ErrUnsupportedModel = errors.New("model: architecture not supported")
)

// Model definiert das Interface fuer spezifische Modell-Familien.
type Model interface {
	nn.Module

	// Forward fuehrt den Vorwaerts-Pass fuer ein Sequenzpaar aus und
	// gibt die Ausgabe der Decoder-Ausgabeprojektion zurueck
	Forward(encoderIDs, decoderIDs []int) (*tensor.Dense, error)

	// HParams gibt die aufgeloeste, unveraenderliche Konfiguration
	// der Instanz zurueck
	HParams() *hparams.HParams
}

// Validator ist ein optionales Interface fuer Post-Konstruktions-Pruefung.
type Validator interface {
	Validate() error
}

// Base implementiert gemeinsame Felder und Methoden fuer alle Modelle.
type Base struct {
	name string
	hp   *hparams.HParams
}

// NewBase erzeugt die Basis aus Name und aufgeloester Konfiguration.
func NewBase(name string, hp *hparams.HParams) Base {
	return Base{name: name, hp: hp}
}

// Name gibt den Modul-Namen zurueck.
func (b *Base) Name() string { return b.name }

// HParams gibt die aufgeloeste Konfiguration zurueck.
func (b *Base) HParams() *hparams.HParams { return b.hp }

// models speichert registrierte Modell-Konstruktoren
var models = make(map[string]func(user hparams.Map) (Model, error))

// Register registriert einen Modell-Konstruktor fuer eine Architektur.
func Register(name string, f func(user hparams.Map) (Model, error)) {
	if _, ok := models[name]; ok {
		panic("model: model already registered")
	}

	models[name] = f
}

// New initialisiert eine neue Model-Instanz der gegebenen Architektur.
// Die partielle Konfiguration user wird vom Konstruktor der Familie
// gegen deren Default-Schema aufgeloest.
func New(arch string, user hparams.Map) (Model, error) {
	f, ok := models[arch]
	if !ok {
		return nil, ErrUnsupportedModel
	}

	m, err := f(user)
	if err != nil {
		return nil, err
	}

	if validator, ok := m.(Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Architectures gibt die registrierten Architektur-Namen zurueck.
func Architectures() []string {
	out := make([]string, 0, len(models))
	for name := range models {
		out = append(out, name)
	}
	return out
}
