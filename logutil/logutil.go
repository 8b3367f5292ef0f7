// Package logutil - Aufbau des strukturierten Loggers
//
// Kleine Hilfsfunktionen rund um log/slog, damit alle Binaries und
// Tests denselben Handler mit gekuerzten Quell-Pfaden verwenden.
package logutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
)

// LevelTrace liegt unterhalb von slog.LevelDebug
const LevelTrace slog.Level = slog.LevelDebug - 4

// NewLogger erzeugt einen Text-Logger mit Quell-Angabe.
// Der Dateipfad im source-Attribut wird auf den Basisnamen gekuerzt.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.SourceKey {
				if source, ok := attr.Value.Any().(*slog.Source); ok {
					source.File = filepath.Base(source.File)
				}
			}
			return attr
		},
	}))
}

// Trace loggt unterhalb von Debug
func Trace(msg string, args ...any) {
	slog.Log(context.TODO(), LevelTrace, msg, args...)
}
