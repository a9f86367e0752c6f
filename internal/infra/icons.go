package infra

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

// IconCache downloads coin icons from provider-supplied image URLs,
// resizes them for the UI and keeps them on disk so each icon is
// fetched at most once.
type IconCache struct {
	basePath string
	client   *http.Client
}

// NewIconCache creates an IconCache rooted at baseDir.
func NewIconCache(baseDir string) (*IconCache, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create icons directory: %w", err)
	}

	// Optimize HTTP Transport to prevent connection leaks
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 100
	transport.MaxConnsPerHost = 10
	transport.IdleConnTimeout = 30 * time.Second

	return &IconCache{
		basePath: baseDir,
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
	}, nil
}

// Dir returns the directory icons are stored in, for static serving.
func (c *IconCache) Dir() string {
	return c.basePath
}

// Localize downloads the remote icon for a coin if it isn't cached yet
// and returns the cached file name. Icons are resized to 64x64 pixels
// for consistent display.
func (c *IconCache) Localize(coinID, remoteURL string) (string, error) {
	// Security: sanitize the id to prevent path traversal
	safeID := sanitizeCoinID(coinID)
	if safeID == "" {
		return "", fmt.Errorf("invalid coin id: %s", coinID)
	}
	if remoteURL == "" {
		return "", fmt.Errorf("no icon source for %s", coinID)
	}

	fileName := strings.ToLower(safeID) + ".png"
	filePath := filepath.Join(c.basePath, fileName)

	if _, err := os.Stat(filePath); err == nil {
		return fileName, nil // Cache hit
	}

	resp, err := c.client.Get(remoteURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bad status: %s", resp.Status)
	}

	srcImg, err := imaging.Decode(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	resizedImg := imaging.Resize(srcImg, 64, 64, imaging.Lanczos)

	if err := imaging.Save(resizedImg, filePath); err != nil {
		return "", fmt.Errorf("failed to save resized image: %w", err)
	}

	return fileName, nil
}

func sanitizeCoinID(id string) string {
	res := make([]rune, 0, len(id))
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			res = append(res, r)
		}
	}
	return strings.Trim(string(res), "-_")
}
