// Package assets downloads remote media into the local media directory
// and registers it with the content platform.
package assets

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/contentstore"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Config holds asset importer settings.
type Config struct {
	// MediaDir is the directory downloaded assets are written to.
	MediaDir string

	// SiteURL is this site's public base URL, used to build the local URL
	// of an imported asset.
	SiteURL string
}

// Importer fetches remote assets over HTTP and stores them locally.
type Importer struct {
	client *httpclient.Client
	store  contentstore.Store
	config Config
	logger ectologger.Logger
}

func NewImporter(client *httpclient.Client, store contentstore.Store, config Config, logger ectologger.Logger) *Importer {
	return &Importer{
		client: client,
		store:  store,
		config: config,
		logger: logger,
	}
}

// Import downloads the asset at remoteURL, writes it under the media
// directory, and records it as a local asset. The returned asset carries
// the local id and local URL.
func (i *Importer) Import(ctx context.Context, remoteURL string) (*models.LocalAsset, error) {
	ctx, span := tracing.StartSpan(ctx, "assets.Importer.Import")
	defer span.End()

	resp, err := i.client.Get(ctx, remoteURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch asset %s: %w", remoteURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch asset %s: status %d", remoteURL, resp.StatusCode)
	}

	filename := localFilename(remoteURL)
	fullPath := filepath.Join(i.config.MediaDir, filename)
	if err := os.MkdirAll(i.config.MediaDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	if err := os.WriteFile(fullPath, resp.Body, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write asset file: %w", err)
	}

	asset := &models.LocalAsset{
		URL:      strings.TrimRight(i.config.SiteURL, "/") + "/media/" + filename,
		Path:     fullPath,
		MimeType: resp.ContentType,
		Title:    strings.TrimSuffix(path.Base(remoteURL), path.Ext(remoteURL)),
	}

	created, err := i.store.CreateAsset(ctx, asset)
	if err != nil {
		return nil, err
	}

	i.logger.WithContext(ctx).WithFields(map[string]any{
		"asset_id": created.ID,
		"remote":   remoteURL,
		"local":    created.URL,
	}).Info("Imported asset")

	return created, nil
}

// localFilename derives a collision-free filename from the remote URL,
// keeping the original base name for readability.
func localFilename(remoteURL string) string {
	base := "asset"
	if u, err := url.Parse(remoteURL); err == nil {
		if b := path.Base(u.Path); b != "" && b != "." && b != "/" {
			base = b
		}
	}
	ext := path.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s-%s%s", name, uuid.New().String()[:8], ext)
}
