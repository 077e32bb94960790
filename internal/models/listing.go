package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaGIF   MediaKind = "gif"
	MediaVideo MediaKind = "video"
)

// Listing is one scraped model entry from the source marketplace.
// It is immutable once the scraper has emitted it.
type Listing struct {
	ID          string       `json:"id"`
	Index       int          `json:"index"` // scrape order, 0-based
	Title       string       `json:"title"`
	Description string       `json:"description"`
	URL         string       `json:"url"`
	Media       []MediaAsset `json:"media"`
	ScrapedAt   time.Time    `json:"scraped_at"`
}

type MediaAsset struct {
	SourceURL     string    `json:"source_url"`
	Kind          MediaKind `json:"kind"`
	LocalPath     string    `json:"local_path,omitempty"`
	ConvertedKind MediaKind `json:"converted_kind,omitempty"`
	ConvertedPath string    `json:"converted_path,omitempty"`
	Error         string    `json:"error,omitempty"`
}

func (a *MediaAsset) Failed() bool {
	return a.Error != ""
}

// FinalPath is the path the marketplace row should reference: the
// converted file when a conversion happened, the download otherwise.
func (a *MediaAsset) FinalPath() string {
	if a.ConvertedPath != "" {
		return a.ConvertedPath
	}
	return a.LocalPath
}

// CommerceParams are the operator-supplied values applied verbatim to
// every row. Validated once at startup, never mutated afterwards.
type CommerceParams struct {
	CategoryID string
	Brand      string
	Price      decimal.Decimal
	Stock      int
	WeightKG   float64
	DimsCM     [3]float64 // length, width, height
}

// UploadRow is one row of the output upload spreadsheet.
type UploadRow struct {
	// Index is the zero-based scrape position, kept so output rows can
	// be ordered no matter how processing interleaved.
	Index       int
	SKU         string
	CategoryID  string
	Name        string
	Description string
	Brand       string
	Price       decimal.Decimal
	Stock       int
	WeightGrams int
	LengthCM    int
	WidthCM     int
	HeightCM    int
	ImageURLs   []string
}

// Row statuses recorded in the metadata CSV.
const (
	StatusOK           = "ok"
	StatusMediaPartial = "media_partial"
	StatusFailed       = "failed"
)

// MetaRecord is the per-listing audit entry, append-only.
type MetaRecord struct {
	ListingID  string    `csv:"listing_id"`
	SKU        string    `csv:"sku"`
	Title      string    `csv:"title"`
	SourceURL  string    `csv:"source_url"`
	MediaTotal int       `csv:"media_total"`
	MediaOK    int       `csv:"media_ok"`
	Status     string    `csv:"status"`
	Error      string    `csv:"error"`
	ScrapedAt  time.Time `csv:"scraped_at"`
}

func NewListing(id, url string, index int) *Listing {
	return &Listing{
		ID:        id,
		Index:     index,
		URL:       url,
		Media:     make([]MediaAsset, 0),
		ScrapedAt: time.Now(),
	}
}
