// translate_test.go - Unit Tests fuer die Tag-Grammatik
package pretrained

import (
	"testing"
)

// TestParseTag testet die Tag-Grammatik tabellengetrieben
func TestParseTag(t *testing.T) {
	tests := []struct {
		name      string
		tag       string
		wantName  string
		wantAlts  int
		transpose bool
	}{
		{name: "nur Name", tag: "shared.weight", wantName: "shared.weight"},
		{
			name:     "mit Alternativen",
			tag:      "shared.weight,alt:encoder.embed_tokens.weight,alt:decoder.embed_tokens.weight",
			wantName: "shared.weight",
			wantAlts: 2,
		},
		{
			name:      "mit transpose",
			tag:       "encoder.block.0.layer.0.SelfAttention.q.weight,transpose",
			wantName:  "encoder.block.0.layer.0.SelfAttention.q.weight",
			transpose: true,
		},
		{
			name:      "alt und transpose",
			tag:       "a.weight,alt:b.weight,transpose",
			wantName:  "a.weight",
			wantAlts:  1,
			transpose: true,
		},
		{
			name:     "leerer Primaername",
			tag:      ",alt:b.weight",
			wantName: "",
			wantAlts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag := parseTag(tt.tag)
			if tag.name != tt.wantName {
				t.Errorf("name = %q, erwartet %q", tag.name, tt.wantName)
			}
			if len(tag.alternatives) != tt.wantAlts {
				t.Errorf("alternatives = %d, erwartet %d", len(tag.alternatives), tt.wantAlts)
			}
			if tag.transpose != tt.transpose {
				t.Errorf("transpose = %v, erwartet %v", tag.transpose, tt.transpose)
			}
		})
	}
}

// TestTagResolve testet die Aufloesung: Primaername vor Alternativen
func TestTagResolve(t *testing.T) {
	ckpt := NewCheckpoint(map[string]*Tensor{
		"primary.weight": {Shape: []int{1}, Data: []float32{1}},
		"alt.weight":     {Shape: []int{1}, Data: []float32{2}},
	})

	tag := parseTag("primary.weight,alt:alt.weight")
	tensor, name, ok := tag.resolve(ckpt)
	if !ok || name != "primary.weight" || tensor.Data[0] != 1 {
		t.Errorf("resolve = (%v, %q, %v), erwartet Primaername", tensor, name, ok)
	}

	tag = parseTag("missing.weight,alt:alt.weight")
	tensor, name, ok = tag.resolve(ckpt)
	if !ok || name != "alt.weight" || tensor.Data[0] != 2 {
		t.Errorf("resolve = (%v, %q, %v), erwartet Alternative", tensor, name, ok)
	}

	if _, _, ok := parseTag("missing.weight").resolve(ckpt); ok {
		t.Error("resolve ohne Treffer sollte false liefern")
	}

	// Leerer Primaername faellt direkt auf die Alternativen zurueck
	tag = parseTag(",alt:alt.weight")
	if tensor, name, ok := tag.resolve(ckpt); !ok || name != "alt.weight" || tensor.Data[0] != 2 {
		t.Errorf("resolve = (%v, %q, %v), erwartet Alternative", tensor, name, ok)
	}
}
