// Package nn - Parameter- und Modul-Schicht ueber der Tensor-Engine
//
// Dieses Paket definiert die Bausteine aus denen Modelle komponiert
// werden: benannte Parameter, das Module-Interface und die Traversierung
// des Modul-Graphen. Die Numerik selbst liegt in der externen Engine
// (github.com/pdevine/tensor); nn komponiert nur deren Operationen.
//
// Hauptkomponenten:
// - Parameter: benannter, trainierbarer Float32-Tensor
// - Module: Interface fuer komponierbare Teilmodule
// - NamedParameters: Traversierung mit Pfadnamen
// - CollectTrainable: Parameter-Sammlung mit Identitaets-Deduplizierung
package nn

import (
	"fmt"

	"github.com/pdevine/tensor"
)

// Parameter ist ein benannter, trainierbarer Tensor. Geteilte Parameter
// (z.B. gebundene Embeddings) werden per Referenz geteilt: jede
// in-place Aenderung ist fuer alle Halter sichtbar.
type Parameter struct {
	Name  string
	Value *tensor.Dense
}

// NewParameter erzeugt einen Parameter mit Namen und Wert.
func NewParameter(name string, value *tensor.Dense) *Parameter {
	return &Parameter{Name: name, Value: value}
}

// Shape gibt die Form des Parameter-Tensors zurueck.
func (p *Parameter) Shape() tensor.Shape {
	return p.Value.Shape()
}

// Data gibt das Float32-Backing des Parameters zurueck.
func (p *Parameter) Data() []float32 {
	return p.Value.Data().([]float32)
}

// Module ist ein komponierbares Teilmodul eines Modell-Graphen. Jedes
// Modul besitzt seine Kinder exklusiv, mit Ausnahme explizit geteilter
// Parameter-Blaetter.
type Module interface {
	// Name gibt den Modul-Namen zurueck (Pfad-Segment bei Traversierung)
	Name() string

	// Parameters gibt die eigenen Parameter zurueck, ohne Kind-Module
	Parameters() []*Parameter

	// Modules gibt die direkten Kind-Module zurueck
	Modules() []Module
}

// NamedParameter ist ein Parameter mit vollem Pfad im Modul-Graphen.
type NamedParameter struct {
	Path  string
	Param *Parameter
}

// NamedParameters traversiert den Modul-Graphen und gibt alle Parameter
// mit Punkt-separierten Pfaden zurueck. Geteilte Parameter erscheinen
// unter jedem Pfad der sie referenziert.
func NamedParameters(m Module) []NamedParameter {
	var out []NamedParameter
	walkNamed(m, "", &out)
	return out
}

func walkNamed(m Module, prefix string, out *[]NamedParameter) {
	path := m.Name()
	if prefix != "" {
		path = prefix + "." + path
	}

	for _, p := range m.Parameters() {
		*out = append(*out, NamedParameter{Path: path + "." + p.Name, Param: p})
	}
	for _, child := range m.Modules() {
		walkNamed(child, path, out)
	}
}

// CollectTrainable sammelt alle trainierbaren Parameter der Module.
// Parameter die von mehreren Modulen referenziert werden (gebundene
// Embeddings) erscheinen genau einmal, dedupliziert ueber Identitaet,
// in der Reihenfolge des ersten Besuchs.
func CollectTrainable(modules ...Module) []*Parameter {
	seen := make(map[*Parameter]struct{})
	var out []*Parameter

	var walk func(m Module)
	walk = func(m Module) {
		for _, p := range m.Parameters() {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
		for _, child := range m.Modules() {
			walk(child)
		}
	}

	for _, m := range modules {
		walk(m)
	}
	return out
}

// NumParameters gibt die Gesamtzahl trainierbarer Skalare zurueck,
// geteilte Parameter einfach gezaehlt.
func NumParameters(modules ...Module) int {
	var n int
	for _, p := range CollectTrainable(modules...) {
		n += p.Value.Shape().TotalSize()
	}
	return n
}

// newDense allokiert einen Float32-Tensor der gegebenen Form.
func newDense(dims ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(dims...), tensor.Of(tensor.Float32))
}

// denseOf erzeugt einen Float32-Tensor aus Form und Backing.
func denseOf(data []float32, dims ...int) (*tensor.Dense, error) {
	n := 1
	for _, d := range dims {
		n *= d
	}
	if len(data) != n {
		return nil, fmt.Errorf("nn: backing of length %d does not match shape %v", len(data), dims)
	}
	return tensor.New(tensor.WithShape(dims...), tensor.WithBacking(data)), nil
}
