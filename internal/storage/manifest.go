// Package storage persists the run manifest: a JSON record of what was
// scraped and downloaded, written into the download directory so a run
// can be inspected afterwards.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"mwlister/internal/models"
)

type ListingRecord struct {
	ListingID string              `json:"listing_id"`
	SKU       string              `json:"sku"`
	URL       string              `json:"url"`
	Status    string              `json:"status"`
	Error     string              `json:"error,omitempty"`
	Assets    []models.MediaAsset `json:"assets,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type Manifest struct {
	RunID     string                    `json:"run_id"`
	Keyword   string                    `json:"keyword"`
	StartedAt time.Time                 `json:"started_at"`
	Listings  map[string]*ListingRecord `json:"listings"`

	mu       sync.Mutex
	filename string
}

func NewManifest(downloadDir, keyword string) *Manifest {
	return &Manifest{
		RunID:     uuid.NewString(),
		Keyword:   keyword,
		StartedAt: time.Now(),
		Listings:  make(map[string]*ListingRecord),
		filename:  filepath.Join(downloadDir, "run_manifest.json"),
	}
}

// Record upserts the entry for a listing and flushes the manifest. A
// save failure is returned but callers treat it as non-fatal.
func (m *Manifest) Record(rec *ListingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec.UpdatedAt = time.Now()
	m.Listings[rec.ListingID] = rec
	return m.save()
}

// save writes via a temp file so a crash never leaves a torn manifest.
func (m *Manifest) save() error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	tmp := m.filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return os.Rename(tmp, m.filename)
}

func (m *Manifest) Path() string {
	return m.filename
}
