// module_test.go - Unit Tests fuer Traversierung und Deduplizierung
package nn

import (
	"testing"

	"github.com/pdevine/tensor"
)

// testModule ist ein minimales Modul fuer Traversierungs-Tests.
type testModule struct {
	name     string
	params   []*Parameter
	children []Module
}

func (m *testModule) Name() string             { return m.name }
func (m *testModule) Parameters() []*Parameter { return m.params }
func (m *testModule) Modules() []Module        { return m.children }

// TestCollectTrainableDedup testet dass ein geteilter Parameter genau
// einmal gesammelt wird
func TestCollectTrainableDedup(t *testing.T) {
	shared := NewParameter("embedding", tensor.New(tensor.WithShape(4, 2), tensor.WithBacking(make([]float32, 8))))

	encoder := &testModule{name: "encoder", params: []*Parameter{shared}}
	decoder := &testModule{name: "decoder", params: []*Parameter{
		shared,
		NewParameter("weight", tensor.New(tensor.WithShape(2, 2), tensor.WithBacking(make([]float32, 4)))),
	}}

	params := CollectTrainable(encoder, decoder)
	if len(params) != 2 {
		t.Fatalf("CollectTrainable = %d Parameter, erwartet 2 (geteilt einfach gezaehlt)", len(params))
	}

	var sharedCount int
	for _, p := range params {
		if p == shared {
			sharedCount++
		}
	}
	if sharedCount != 1 {
		t.Errorf("geteilter Parameter %d-mal enthalten, erwartet 1", sharedCount)
	}
}

// TestCollectTrainableRecursive testet die rekursive Sammlung ueber Kinder
func TestCollectTrainableRecursive(t *testing.T) {
	leafParam := NewParameter("gamma", tensor.New(tensor.WithShape(2), tensor.WithBacking(make([]float32, 2))))
	leaf := &testModule{name: "norm", params: []*Parameter{leafParam}}
	root := &testModule{name: "root", children: []Module{leaf}}

	params := CollectTrainable(root)
	if len(params) != 1 || params[0] != leafParam {
		t.Fatalf("rekursive Sammlung fehlgeschlagen: %v", params)
	}
}

// TestNamedParameters testet die Pfadbildung bei der Traversierung
func TestNamedParameters(t *testing.T) {
	leaf := &testModule{name: "wi", params: []*Parameter{
		NewParameter("weight", tensor.New(tensor.WithShape(2, 2), tensor.WithBacking(make([]float32, 4)))),
	}}
	root := &testModule{name: "ffn", children: []Module{leaf}}

	named := NamedParameters(root)
	if len(named) != 1 {
		t.Fatalf("NamedParameters = %d Eintraege, erwartet 1", len(named))
	}
	if named[0].Path != "ffn.wi.weight" {
		t.Errorf("Pfad = %q, erwartet %q", named[0].Path, "ffn.wi.weight")
	}
}

// TestNumParameters testet die Skalar-Zaehlung mit geteilten Parametern
func TestNumParameters(t *testing.T) {
	shared := NewParameter("embedding", tensor.New(tensor.WithShape(4, 2), tensor.WithBacking(make([]float32, 8))))
	a := &testModule{name: "a", params: []*Parameter{shared}}
	b := &testModule{name: "b", params: []*Parameter{shared}}

	if n := NumParameters(a, b); n != 8 {
		t.Errorf("NumParameters = %d, erwartet 8", n)
	}
}
