// Package envconfig - Environment-Konfiguration
//
// Dieses Paket liest alle TEXAR_*-Environment-Variablen an einer
// zentralen Stelle aus. Werte werden bei jedem Aufruf frisch gelesen,
// damit Tests sie mit t.Setenv ueberschreiben koennen.
package envconfig

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	return func() bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return false
	}
}

// Home gibt das Wurzelverzeichnis fuer lokale Daten zurueck.
// Ueberschreibbar mit TEXAR_HOME, Default ist ~/.texar_data.
func Home() string {
	if s := Var("TEXAR_HOME"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".texar_data"
	}

	return filepath.Join(home, ".texar_data")
}

// CacheDir gibt das Cache-Verzeichnis fuer Checkpoints zurueck.
// Ueberschreibbar mit TEXAR_CACHE, Default ist Home()/checkpoints.
func CacheDir() string {
	if s := Var("TEXAR_CACHE"); s != "" {
		return s
	}

	return filepath.Join(Home(), "checkpoints")
}

// Offline gibt an, ob Downloads unterbunden werden sollen
// (TEXAR_OFFLINE)
var Offline = Bool("TEXAR_OFFLINE")

// LogLevel gibt den konfigurierten Log-Level zurueck (TEXAR_DEBUG)
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("TEXAR_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}
