// errors.go - Fehlertypen der Modul-Schicht
package nn

import "fmt"

// DimensionMismatchError zeigt inkompatible Modul-Dimensionen zur
// Konstruktionszeit an, bevor ein Forward-Durchlauf moeglich ist.
type DimensionMismatchError struct {
	Module string
	Field  string
	Want   int
	Got    int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("nn: %s: %s must be %d, got %d", e.Module, e.Field, e.Want, e.Got)
}
