// translate.go - Namens-Uebersetzung zwischen Modul-Graph und Checkpoint
//
// Hauptkomponenten:
// - Rule: bindet einen Parameter-Pfad an einen Checkpoint-Tag
// - parseTag: parst Tag-Strings der Form "name,alt:andererName,transpose"
//
// Der Tag nennt den primaeren Checkpoint-Namen, beliebig viele
// Alternativnamen fuer abweichende Export-Konventionen und das
// transpose-Flag fuer Gewichte im [out, in]-Layout.
package pretrained

import (
	"strings"
)

// Rule bindet einen Parameter-Pfad des Modul-Graphen an einen Tag.
type Rule struct {
	// Param ist der Punkt-separierte Pfad unterhalb des Wurzel-Moduls
	Param string

	// Tag beschreibt den Checkpoint-Namen, z.B.
	// "encoder.block.0.layer.0.SelfAttention.q.weight,transpose"
	Tag string
}

// Tag repraesentiert einen geparsten Checkpoint-Tag
type Tag struct {
	name         string
	alternatives []string
	transpose    bool
}

// parseTag parst einen Tag-String in eine Tag-Struktur. Ein leerer
// Primaername ist zulaessig; resolve greift dann direkt auf die
// Alternativen zurueck.
func parseTag(s string) (tag Tag) {
	parts := strings.Split(s, ",")
	tag.name = parts[0]

	for _, part := range parts[1:] {
		if value, ok := strings.CutPrefix(part, "alt:"); ok {
			tag.alternatives = append(tag.alternatives, value)
			continue
		}
		if part == "transpose" {
			tag.transpose = true
		}
	}

	return
}

// resolve sucht den Tensor des Tags im Checkpoint: erst der
// Primaername, dann die Alternativen in Reihenfolge.
func (t Tag) resolve(c Checkpoint) (*Tensor, string, bool) {
	if tensor, ok := c.Tensor(t.name); ok {
		return tensor, t.name, true
	}
	for _, alt := range t.alternatives {
		if tensor, ok := c.Tensor(alt); ok {
			return tensor, alt, true
		}
	}
	return nil, "", false
}
