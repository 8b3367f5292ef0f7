// Package hparams - Typisierte Getter fuer aufgeloeste Konfigurationen
//
// Dieses Modul enthaelt die lesenden Zugriffe auf HParams:
// - Generische Getter (Get, Has, Keys)
// - Typisierte Getter mit optionalem Default (String, Int, Float, Bool)
// - IntList: normalisiert "int oder []int"-Werte zu []int
// - Sub: Zugriff auf verschachtelte Konfigurationen
// - ToMap: Rueckkonvertierung in ein Literal (fuer erneutes Resolve)
package hparams

import (
	"maps"
	"slices"
)

// Get gibt den rohen Wert eines Schluessels zurueck.
func (hp *HParams) Get(key string) (any, bool) {
	if hp == nil {
		return nil, false
	}
	val, ok := hp.values[key]
	return val, ok
}

// Has prueft ob ein Schluessel existiert.
func (hp *HParams) Has(key string) bool {
	_, ok := hp.Get(key)
	return ok
}

// Keys gibt alle Schluessel sortiert zurueck.
func (hp *HParams) Keys() []string {
	if hp == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(hp.values))
}

// String gibt einen String-Wert zurueck, oder defaultValue wenn der
// Schluessel fehlt oder keinen String enthaelt.
func (hp *HParams) String(key string, defaultValue ...string) string {
	if val, ok := hp.Get(key); ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

// Int gibt einen Ganzzahl-Wert zurueck, beliebige Ganzzahl-Typen des
// Konfigurations-Literals werden konvertiert.
func (hp *HParams) Int(key string, defaultValue ...int) int {
	if val, ok := hp.Get(key); ok {
		if n, ok := toInt(val); ok {
			return n
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return 0
}

// Float gibt einen Gleitkomma-Wert zurueck; Ganzzahlen werden akzeptiert.
func (hp *HParams) Float(key string, defaultValue ...float64) float64 {
	if val, ok := hp.Get(key); ok {
		switch f := val.(type) {
		case float64:
			return f
		case float32:
			return float64(f)
		default:
			if n, ok := toInt(val); ok {
				return float64(n)
			}
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return 0
}

// Bool gibt einen Bool-Wert zurueck.
func (hp *HParams) Bool(key string, defaultValue ...bool) bool {
	if val, ok := hp.Get(key); ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return false
}

// Sub gibt eine verschachtelte Konfiguration zurueck, oder nil wenn der
// Schluessel fehlt oder keinen Baum enthaelt.
func (hp *HParams) Sub(key string) *HParams {
	if val, ok := hp.Get(key); ok {
		if sub, ok := val.(*HParams); ok {
			return sub
		}
	}
	return nil
}

// IntList normalisiert einen "int oder []int"-Wert (opake Schluessel wie
// "dim") zu einer Liste. Ein Skalar ergibt eine Liste der Laenge 1.
func (hp *HParams) IntList(key string) []int {
	val, ok := hp.Get(key)
	if !ok || val == nil {
		return nil
	}

	if n, ok := toInt(val); ok {
		return []int{n}
	}

	switch list := val.(type) {
	case []int:
		return slices.Clone(list)
	case []any:
		out := make([]int, 0, len(list))
		for _, item := range list {
			n, ok := toInt(item)
			if !ok {
				return nil
			}
			out = append(out, n)
		}
		return out
	default:
		return nil
	}
}

// ToMap konvertiert den aufgeloesten Baum zurueck in ein Literal. Das
// Ergebnis enthaelt jeden Schema-Schluessel; erneutes Resolve gegen
// dasselbe Schema ist idempotent.
func (hp *HParams) ToMap() Map {
	if hp == nil {
		return nil
	}
	out := make(Map, len(hp.values)+1)
	for key, val := range hp.values {
		if sub, ok := val.(*HParams); ok {
			out[key] = sub.ToMap()
		} else {
			out[key] = copyValue(val)
		}
	}
	if len(hp.opaque) > 0 {
		out[NoTypecheckKey] = slices.Clone(hp.opaque)
	}
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	default:
		return 0, false
	}
}
