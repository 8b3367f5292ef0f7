// cache.go - Cache-Management fuer heruntergeladene Checkpoints
// Verzeichnis-Layout: <CacheDir>/models--<owner>--<name>/<datei>
package pretrained

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/asyml/texar-go/envconfig"
)

// CacheModelPrefix ist der Verzeichnis-Prefix pro Modell
const CacheModelPrefix = "models--"

// Cache-Fehler
var (
	ErrModelNotInCache   = errors.New("modell nicht im cache")
	ErrCacheAccessDenied = errors.New("zugriff auf cache verweigert")
)

// CachedModel repraesentiert ein gecachtes Modell
type CachedModel struct {
	ModelID   string
	CacheDir  string
	TotalSize int64
	FileCount int
}

// CachePath gibt das Cache-Verzeichnis eines Modells zurueck.
func CachePath(modelID string) string {
	return filepath.Join(envconfig.CacheDir(), modelIDToCacheDir(modelID))
}

// CachedFile prueft ob eine Datei eines Modells im Cache liegt.
func CachedFile(modelID, filename string) (string, bool) {
	path := filepath.Join(CachePath(modelID), filename)
	if stat, err := os.Stat(path); err == nil && !stat.IsDir() {
		return path, true
	}
	return "", false
}

// EnsureCacheDir stellt sicher, dass das Cache-Verzeichnis existiert
func EnsureCacheDir() error {
	return os.MkdirAll(envconfig.CacheDir(), 0o755)
}

// ListCachedModels gibt eine Liste aller gecachten Modelle zurueck
func ListCachedModels() ([]CachedModel, error) {
	cacheDir := envconfig.CacheDir()
	if _, err := os.Stat(cacheDir); os.IsNotExist(err) {
		return nil, nil
	}

	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		if os.IsPermission(err) {
			return nil, ErrCacheAccessDenied
		}
		return nil, fmt.Errorf("cache lesen fehlgeschlagen: %w", err)
	}

	var models []CachedModel
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), CacheModelPrefix) {
			continue
		}
		modelPath := filepath.Join(cacheDir, entry.Name())
		size, count := dirSizeAndCount(modelPath)
		models = append(models, CachedModel{
			ModelID:   cacheDirToModelID(entry.Name()),
			CacheDir:  modelPath,
			TotalSize: size,
			FileCount: count,
		})
	}
	return models, nil
}

// ClearModelCache loescht den Cache fuer ein spezifisches Modell
func ClearModelCache(modelID string) error {
	modelPath := CachePath(modelID)
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return ErrModelNotInCache
	}
	return os.RemoveAll(modelPath)
}

// ClearCache loescht alle gecachten Modelle
func ClearCache() error {
	cacheDir := envconfig.CacheDir()
	if _, err := os.Stat(cacheDir); os.IsNotExist(err) {
		return nil
	}
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		if os.IsPermission(err) {
			return ErrCacheAccessDenied
		}
		return fmt.Errorf("cache lesen fehlgeschlagen: %w", err)
	}
	var lastErr error
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), CacheModelPrefix) {
			if err := os.RemoveAll(filepath.Join(cacheDir, entry.Name())); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}

func modelIDToCacheDir(modelID string) string {
	return CacheModelPrefix + strings.ReplaceAll(modelID, "/", "--")
}

func cacheDirToModelID(cacheDir string) string {
	return strings.Replace(strings.TrimPrefix(cacheDir, CacheModelPrefix), "--", "/", 1)
}

func dirSizeAndCount(path string) (int64, int) {
	var size int64
	var count int
	filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
			count++
		}
		return nil
	})
	return size, count
}
