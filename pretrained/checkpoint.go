// checkpoint.go - Einheitlicher Zugriff auf Checkpoint-Dateien
//
// Ein Checkpoint ist eine benannte Sammlung von Float32-Tensoren,
// unabhaengig vom Dateiformat. Open waehlt den Reader anhand der
// Dateiendung: .safetensors oder PyTorch-Pickle.
package pretrained

import (
	"fmt"
	"path/filepath"
	"sort"
)

// Tensor ist ein entpackter Checkpoint-Tensor in Zeilen-Major-Ordnung.
type Tensor struct {
	Shape []int
	Data  []float32
}

// NumElements gibt die Anzahl der Skalare zurueck.
func (t *Tensor) NumElements() int {
	n := 1
	for _, dim := range t.Shape {
		n *= dim
	}
	return n
}

// Checkpoint ist ein lesender Zugriff auf benannte Tensoren.
type Checkpoint interface {
	// Names gibt alle Tensor-Namen sortiert zurueck
	Names() []string

	// Tensor gibt den Tensor mit dem Namen zurueck, falls vorhanden
	Tensor(name string) (*Tensor, bool)
}

// tensorMap ist die In-Memory-Implementierung von Checkpoint.
type tensorMap map[string]*Tensor

func (m tensorMap) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m tensorMap) Tensor(name string) (*Tensor, bool) {
	t, ok := m[name]
	return t, ok
}

// NewCheckpoint baut einen In-Memory-Checkpoint aus benannten Tensoren.
func NewCheckpoint(tensors map[string]*Tensor) Checkpoint {
	m := make(tensorMap, len(tensors))
	for name, t := range tensors {
		m[name] = t
	}
	return m
}

// Open liest eine Checkpoint-Datei vollstaendig in den Speicher.
func Open(path string) (Checkpoint, error) {
	switch filepath.Ext(path) {
	case ".safetensors":
		return openSafetensors(path)
	case ".bin", ".pt", ".pth":
		return openTorch(path)
	default:
		return nil, fmt.Errorf("pretrained: unsupported checkpoint format %q", filepath.Ext(path))
	}
}
