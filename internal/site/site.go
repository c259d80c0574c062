// Package site stores deployed sites on disk, addressed by a content hash of
// their pages.
package site

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when a site or page does not exist.
var ErrNotFound = errors.New("site not found")

// HashLength is the number of hex characters in a site hash.
const HashLength = 16

// Page is one deployable page.
type Page struct {
	ID     string `json:"page_id"`
	Markup string `json:"html"`
}

// Metadata describes a deployed site.
type Metadata struct {
	Description string `json:"description,omitempty"`
	Style       string `json:"site_style,omitempty"`
	NumPages    int    `json:"num_pages"`
}

// Info summarizes one deployed site for listings.
type Info struct {
	Hash     string   `json:"site_hash"`
	Metadata Metadata `json:"metadata"`
	Path     string   `json:"path"`
}

// pageEntry is one row of a site's pages.json.
type pageEntry struct {
	PageID string `json:"page_id"`
	File   string `json:"file"`
}

// Deployer writes and serves deployed sites under a root directory.
type Deployer struct {
	sitesDir string
	homePage string
	logger   *slog.Logger
}

// Config holds deployer configuration.
type Config struct {
	// SitesDir is the storage root. Created if missing.
	SitesDir string
	// HomePage selects which page ID becomes index.html. Empty picks the
	// lowest page ID.
	HomePage string
	Logger   *slog.Logger
}

// NewDeployer creates a Deployer and its storage root.
func NewDeployer(cfg Config) (*Deployer, error) {
	if cfg.SitesDir == "" {
		return nil, fmt.Errorf("sites directory is required")
	}
	if err := os.MkdirAll(cfg.SitesDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sites directory: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Deployer{sitesDir: cfg.SitesDir, homePage: cfg.HomePage, logger: logger}, nil
}

// ComputeHash returns the content hash for a set of pages: pages sorted by
// ID, markup concatenated, sha256 truncated to HashLength hex characters.
// Page order in the input does not affect the hash.
func ComputeHash(pages []Page) string {
	sorted := make([]Page, len(pages))
	copy(sorted, pages)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	h := sha256.New()
	for _, p := range sorted {
		h.Write([]byte(p.Markup))
	}
	return hex.EncodeToString(h.Sum(nil))[:HashLength]
}

// Deploy writes the site to disk and returns its hash. Deploying identical
// content is idempotent: the existing site is left untouched. The site
// directory appears atomically via a temp-dir rename, so readers never see a
// partially written site.
func (d *Deployer) Deploy(pages []Page, meta Metadata) (string, error) {
	if len(pages) == 0 {
		return "", fmt.Errorf("no pages to deploy")
	}
	for _, p := range pages {
		if err := validatePageID(p.ID); err != nil {
			return "", err
		}
	}

	hash := ComputeHash(pages)
	finalPath := filepath.Join(d.sitesDir, hash)

	if _, err := os.Stat(finalPath); err == nil {
		d.logger.Info("site already deployed", "site_hash", hash)
		return hash, nil
	}

	tmpPath, err := os.MkdirTemp(d.sitesDir, ".deploy-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(tmpPath)

	for _, p := range pages {
		file := filepath.Join(tmpPath, p.ID+".html")
		if err := os.WriteFile(file, []byte(p.Markup), 0o644); err != nil {
			return "", fmt.Errorf("failed to write page %s: %w", p.ID, err)
		}
	}

	home := d.pickHomePage(pages)
	if err := os.WriteFile(filepath.Join(tmpPath, "index.html"), []byte(home.Markup), 0o644); err != nil {
		return "", fmt.Errorf("failed to write index: %w", err)
	}

	meta.NumPages = len(pages)
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmpPath, "metadata.json"), metaBytes, 0o644); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}

	entries := make([]pageEntry, 0, len(pages))
	for _, p := range pages {
		entries = append(entries, pageEntry{PageID: p.ID, File: p.ID + ".html"})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].PageID < entries[j].PageID })
	pagesBytes, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal pages list: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmpPath, "pages.json"), pagesBytes, 0o644); err != nil {
		return "", fmt.Errorf("failed to write pages list: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		// A concurrent deploy of the same content may have won the rename.
		if _, statErr := os.Stat(finalPath); statErr == nil {
			return hash, nil
		}
		return "", fmt.Errorf("failed to publish site: %w", err)
	}

	d.logger.Info("site deployed", "site_hash", hash, "pages", len(pages))
	return hash, nil
}

// pickHomePage selects the page served as index.html: the configured home
// page when present, otherwise the lowest page ID.
func (d *Deployer) pickHomePage(pages []Page) Page {
	if d.homePage != "" {
		for _, p := range pages {
			if p.ID == d.homePage {
				return p
			}
		}
	}
	home := pages[0]
	for _, p := range pages[1:] {
		if p.ID < home.ID {
			home = p
		}
	}
	return home
}

// Fetch returns a page's markup. pageID "index" or "" returns the home page.
func (d *Deployer) Fetch(hash, pageID string) (string, error) {
	if err := validateHash(hash); err != nil {
		return "", err
	}
	sitePath := filepath.Join(d.sitesDir, hash)
	if info, err := os.Stat(sitePath); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, hash)
	}

	if pageID == "" || pageID == "index" {
		pageID = "index"
	} else if err := validatePageID(pageID); err != nil {
		// A malformed page ID cannot name a stored page.
		return "", fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	data, err := os.ReadFile(filepath.Join(sitePath, pageID+".html"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: page %s in site %s", ErrNotFound, pageID, hash)
		}
		return "", fmt.Errorf("failed to read page: %w", err)
	}
	return string(data), nil
}

// List returns all deployed sites sorted by hash.
func (d *Deployer) List() ([]Info, error) {
	entries, err := os.ReadDir(d.sitesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sites directory: %w", err)
	}

	var sites []Info
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info := Info{
			Hash: entry.Name(),
			Path: filepath.Join(d.sitesDir, entry.Name()),
		}
		metaBytes, err := os.ReadFile(filepath.Join(info.Path, "metadata.json"))
		if err == nil {
			_ = json.Unmarshal(metaBytes, &info.Metadata)
		}
		sites = append(sites, info)
	}

	sort.Slice(sites, func(i, j int) bool { return sites[i].Hash < sites[j].Hash })
	return sites, nil
}

// Delete removes a deployed site. Returns ErrNotFound if it does not exist.
func (d *Deployer) Delete(hash string) error {
	if err := validateHash(hash); err != nil {
		return err
	}
	sitePath := filepath.Join(d.sitesDir, hash)
	if info, err := os.Stat(sitePath); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	if err := os.RemoveAll(sitePath); err != nil {
		return fmt.Errorf("failed to delete site: %w", err)
	}
	d.logger.Info("site deleted", "site_hash", hash)
	return nil
}

// validateHash rejects hashes that could escape the sites directory. A
// malformed hash cannot name a deployed site, so callers see a lookup miss
// rather than an internal error.
func validateHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("%w: empty site hash", ErrNotFound)
	}
	for _, r := range hash {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return fmt.Errorf("%w: invalid site hash %q", ErrNotFound, hash)
		}
	}
	return nil
}

// validatePageID rejects page IDs that could escape a site directory.
func validatePageID(id string) error {
	if id == "" {
		return fmt.Errorf("empty page ID")
	}
	if strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return fmt.Errorf("invalid page ID: %q", id)
	}
	return nil
}
