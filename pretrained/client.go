// client.go - HTTP-Client fuer den HuggingFace Hub
// Laedt Checkpoint-Dateien in den lokalen Cache herunter.
package pretrained

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/asyml/texar-go/envconfig"
)

// Konstanten fuer den HuggingFace Hub
const (
	DefaultHubURL        = "https://huggingface.co"
	DefaultClientTimeout = 1800 * time.Second // grosse Checkpoint-Dateien
	MaxDownloadRetries   = 3
	DownloadRetryDelay   = 2 * time.Second
	DefaultParallelism   = 4
	EnvHFToken           = "HF_TOKEN"
	EnvHFEndpoint        = "HF_ENDPOINT"
	ClientUserAgent      = "texar-go/1.0"
)

// Fehler-Definitionen
var (
	ErrModelNotFound   = errors.New("modell nicht gefunden")
	ErrUnauthorized    = errors.New("authentifizierung fehlgeschlagen")
	ErrRateLimited     = errors.New("rate limit ueberschritten")
	ErrNetworkError    = errors.New("netzwerkfehler")
	ErrInvalidModelID  = errors.New("ungueltige modell-id")
	ErrFileNotFound    = errors.New("datei nicht gefunden")
	ErrDownloadFailed  = errors.New("download fehlgeschlagen")
	ErrInvalidResponse = errors.New("ungueltige server-antwort")
	ErrOffline         = errors.New("offline-modus aktiv, datei nicht im cache")
)

// Client laedt Dateien aus Hub-Repositories in den Cache.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
}

// ClientOption ist eine Funktion zur Konfiguration des Clients
type ClientOption func(*Client)

// WithToken setzt den Hub API Token
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithBaseURL setzt eine Custom Base-URL
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(url, "/") }
}

// WithClientTimeout setzt den HTTP Timeout
func WithClientTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// WithHTTPClient setzt einen Custom HTTP Client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// NewClient erstellt einen neuen Hub-Client
func NewClient(options ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultClientTimeout},
		baseURL:    DefaultHubURL,
		userAgent:  ClientUserAgent,
	}
	if token := envconfig.Var(EnvHFToken); token != "" {
		c.token = token
	}
	if endpoint := envconfig.Var(EnvHFEndpoint); endpoint != "" {
		c.baseURL = strings.TrimSuffix(endpoint, "/")
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// FetchFile gibt den lokalen Pfad einer Repository-Datei zurueck.
// Ist die Datei im Cache, wird sie nicht erneut heruntergeladen.
func (c *Client) FetchFile(ctx context.Context, modelID, filename string) (string, error) {
	if err := validateModelID(modelID); err != nil {
		return "", err
	}
	if filename == "" {
		return "", fmt.Errorf("%w: dateiname darf nicht leer sein", ErrFileNotFound)
	}

	if path, ok := CachedFile(modelID, filename); ok {
		slog.Debug("checkpoint-datei im cache", "model", modelID, "file", filename)
		return path, nil
	}
	if envconfig.Offline() {
		return "", fmt.Errorf("%w: %s/%s", ErrOffline, modelID, filename)
	}

	targetPath := filepath.Join(CachePath(modelID), filename)
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return "", fmt.Errorf("verzeichnis erstellen fehlgeschlagen: %w", err)
	}

	url := fmt.Sprintf("%s/%s/resolve/main/%s", c.baseURL, modelID, filename)
	var lastErr error
	for attempt := 0; attempt < MaxDownloadRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(DownloadRetryDelay):
			}
			slog.Warn("download wird wiederholt", "file", filename, "attempt", attempt+1, "error", lastErr)
		}
		if err := c.doDownload(ctx, url, targetPath); err != nil {
			if errors.Is(err, ErrModelNotFound) || errors.Is(err, ErrUnauthorized) {
				return "", err
			}
			lastErr = err
			continue
		}
		return targetPath, nil
	}
	return "", fmt.Errorf("%w: nach %d versuchen: %v", ErrDownloadFailed, MaxDownloadRetries, lastErr)
}

// FetchAll laedt mehrere Repository-Dateien parallel herunter und gibt
// die lokalen Pfade in Eingabe-Reihenfolge zurueck.
func (c *Client) FetchAll(ctx context.Context, modelID string, filenames []string) ([]string, error) {
	paths := make([]string, len(filenames))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultParallelism)
	for i, filename := range filenames {
		g.Go(func() error {
			path, err := c.FetchFile(ctx, modelID, filename)
			if err != nil {
				return err
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func (c *Client) doDownload(ctx context.Context, url, targetPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()
	if err := c.handleResponseError(resp); err != nil {
		return err
	}

	// Atomisches Schreiben: erst in Temp-Datei, dann Rename
	tmpFile, err := os.CreateTemp(filepath.Dir(targetPath), ".download-*")
	if err != nil {
		return fmt.Errorf("temp-datei erstellen fehlgeschlagen: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("datei schliessen fehlgeschlagen: %w", err)
	}
	tmpFile = nil
	return os.Rename(tmpPath, targetPath)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) handleResponseError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		return nil
	case http.StatusNotFound:
		return ErrModelNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("%w: status %d - %s", ErrInvalidResponse, resp.StatusCode, string(body))
		}
		return nil
	}
}

func validateModelID(modelID string) error {
	if modelID == "" {
		return fmt.Errorf("%w: modell-id darf nicht leer sein", ErrInvalidModelID)
	}
	parts := strings.Split(modelID, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("%w: erwartet format 'owner/model'", ErrInvalidModelID)
	}
	return nil
}
