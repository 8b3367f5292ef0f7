// Package hparams - Hyperparameter-Aufloesung fuer Modul-Konfigurationen
//
// Dieses Paket loest eine partielle Nutzer-Konfiguration gegen das
// Default-Schema eines Moduls auf und liefert einen vollstaendig
// belegten, unveraenderlichen Konfigurationsbaum.
//
// Hauptkomponenten:
// - Map: verschachtelte Konfigurations-Literale (string -> any)
// - HParams: aufgeloester, schreibgeschuetzter Konfigurationsbaum
// - Resolve: fuellt fehlende Schluessel mit Schema-Defaults auf
// - ConfigError: unbekannter Schluessel oder inkompatibler Wert-Typ
//
// Schluessel, die im Schema unter "@no_typecheck" gelistet sind, werden
// ohne Typpruefung uebernommen (z.B. "dim" als int oder []int).
package hparams

import (
	"fmt"
	"reflect"
	"slices"
)

// NoTypecheckKey markiert im Schema die Liste der opaken Schluessel.
const NoTypecheckKey = "@no_typecheck"

// Map ist ein verschachteltes Konfigurations-Literal.
type Map map[string]any

// ConfigError beschreibt eine fehlerhafte Hyperparameter-Konfiguration.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("hparams: invalid configuration for %q: %s", e.Key, e.Reason)
}

// HParams ist ein aufgeloester Konfigurationsbaum. Nach Resolve ist der
// Baum unveraenderlich; alle Zugriffe sind lesend.
type HParams struct {
	values map[string]any
	opaque []string
}

// Resolve fuellt user gegen das Default-Schema defaults auf.
//
// Fuer jeden Schema-Schluessel gilt: fehlt er in user, wird der Default
// uebernommen; sind beide Werte Maps, wird rekursiv aufgeloest; opake
// Schluessel uebernehmen den Nutzer-Wert ungeprueft; sonst muss der
// Nutzer-Wert typkompatibel zum Default sein (nil bedeutet "kein Wert").
// Schluessel in user, die das Schema nicht kennt, sind ein ConfigError.
// Weder user noch defaults werden veraendert.
func Resolve(user, defaults Map) (*HParams, error) {
	return resolve(user, defaults, "")
}

func resolve(user, defaults Map, path string) (*HParams, error) {
	hp := &HParams{values: make(map[string]any, len(defaults))}

	if raw, ok := defaults[NoTypecheckKey]; ok {
		list, err := stringList(raw)
		if err != nil {
			return nil, &ConfigError{Key: join(path, NoTypecheckKey), Reason: err.Error()}
		}
		hp.opaque = list
	}

	for key := range user {
		if key == NoTypecheckKey {
			continue
		}
		if _, ok := defaults[key]; !ok {
			return nil, &ConfigError{Key: join(path, key), Reason: "unknown hyperparameter"}
		}
	}

	for key, def := range defaults {
		if key == NoTypecheckKey {
			continue
		}

		val, ok := lookup(user, key)
		if !ok {
			hp.values[key] = copyValue(def)
			continue
		}

		defMap, defIsMap := asMap(def)
		valMap, valIsMap := asMap(val)
		switch {
		case defIsMap && valIsMap:
			sub, err := resolve(valMap, defMap, join(path, key))
			if err != nil {
				return nil, err
			}
			hp.values[key] = sub
		case slices.Contains(hp.opaque, key):
			hp.values[key] = copyValue(val)
		case val == nil:
			// nil heisst "kein Wert", der Default-Typ ist egal
			hp.values[key] = nil
		case def == nil:
			// nil-Default laesst jeden Wert zu (z.B. eine
			// Initializer-Spezifikation als verschachteltes Literal)
			hp.values[key] = copyValue(val)
		case defIsMap != valIsMap:
			return nil, &ConfigError{
				Key:    join(path, key),
				Reason: fmt.Sprintf("expected nested configuration, got %T", val),
			}
		case !compatible(def, val):
			return nil, &ConfigError{
				Key:    join(path, key),
				Reason: fmt.Sprintf("type %T is incompatible with default type %T", val, def),
			}
		default:
			hp.values[key] = copyValue(val)
		}
	}

	// Default-Maps ohne Nutzer-Override ebenfalls als HParams aufloesen,
	// damit Sub() ueberall funktioniert.
	for key, val := range hp.values {
		switch m := val.(type) {
		case Map:
			sub, err := resolve(nil, m, join(path, key))
			if err != nil {
				return nil, err
			}
			hp.values[key] = sub
		case map[string]any:
			sub, err := resolve(nil, Map(m), join(path, key))
			if err != nil {
				return nil, err
			}
			hp.values[key] = sub
		}
	}

	return hp, nil
}

// lookup unterscheidet "Schluessel fehlt" von "Wert ist nil": ein
// explizites nil im user-Literal ist ein gueltiger Wert.
func lookup(user Map, key string) (any, bool) {
	if user == nil {
		return nil, false
	}
	val, ok := user[key]
	return val, ok
}

// asMap akzeptiert Map, map[string]any und bereits aufgeloeste HParams.
func asMap(v any) (Map, bool) {
	switch m := v.(type) {
	case Map:
		return m, true
	case map[string]any:
		return Map(m), true
	case *HParams:
		return m.ToMap(), true
	default:
		return nil, false
	}
}

// compatible prueft ob ein Nutzer-Wert zum Default-Wert typkompatibel ist.
// Ganzzahlen untereinander, Gleitkomma untereinander sowie int fuer einen
// float-Default gelten als kompatibel.
func compatible(def, val any) bool {
	dk := reflect.ValueOf(def).Kind()
	vk := reflect.ValueOf(val).Kind()

	switch {
	case isInt(dk):
		return isInt(vk)
	case isFloat(dk):
		return isFloat(vk) || isInt(vk)
	case dk == reflect.String:
		return vk == reflect.String
	case dk == reflect.Bool:
		return vk == reflect.Bool
	case dk == reflect.Slice || dk == reflect.Array:
		return vk == reflect.Slice || vk == reflect.Array
	default:
		return dk == vk
	}
}

func isInt(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

// copyValue kopiert Slices, damit der aufgeloeste Baum nicht am
// Eingabe-Literal haengt. Skalare werden direkt uebernommen.
func copyValue(v any) any {
	rv := reflect.ValueOf(v)
	if v == nil || rv.Kind() != reflect.Slice {
		return v
	}
	out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
	reflect.Copy(out, rv)
	return out.Interface()
}

func stringList(v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return slices.Clone(list), nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s entries must be strings, got %T", NoTypecheckKey, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be a string list, got %T", NoTypecheckKey, v)
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
