// Package pipeline sequences the run: search, per-listing extraction,
// media download, row mapping, and output writing.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"mwlister/internal/config"
	"mwlister/internal/mapper"
	"mwlister/internal/models"
	"mwlister/internal/scraper"
	"mwlister/internal/sheet"
	"mwlister/internal/storage"
)

type State string

const (
	StateInit        State = "INIT"
	StateSearching   State = "SEARCHING"
	StatePerListing  State = "PER_LISTING"
	StateWriteOutput State = "WRITE_OUTPUT"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// Searcher produces the scrape sequence. Satisfied by scraper.Scraper.
type Searcher interface {
	Search(ctx context.Context, keyword string, max int) <-chan scraper.Result
}

// MediaProcessor downloads and converts one listing's media. Satisfied
// by media.Handler.
type MediaProcessor interface {
	ProcessListing(ctx context.Context, listing *models.Listing) ([]models.MediaAsset, error)
}

// SheetWriter writes the final spreadsheet. Satisfied by sheet.Writer.
type SheetWriter interface {
	Write(outputPath string, rows []*models.UploadRow) error
}

// Summary is what a finished run reports.
type Summary struct {
	Listings     int
	Rows         int
	MediaOK      int
	MediaFailed  int
	ListingsFail int
}

type Pipeline struct {
	cfg      *config.Config
	searcher Searcher
	media    MediaProcessor
	mapper   *mapper.Mapper
	writer   SheetWriter
	manifest *storage.Manifest
	logger   *slog.Logger

	state State
}

func New(cfg *config.Config, searcher Searcher, media MediaProcessor, m *mapper.Mapper, writer SheetWriter, manifest *storage.Manifest, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		searcher: searcher,
		media:    media,
		mapper:   m,
		writer:   writer,
		manifest: manifest,
		logger:   logger.With("component", "pipeline"),
		state:    StateInit,
	}
}

func (p *Pipeline) State() State {
	return p.state
}

// Run executes the whole pipeline. Per-listing and per-asset failures
// are absorbed into the metadata records; the returned error is non-nil
// only for total scrape failure or an output write failure, both of
// which leave the run in StateFailed.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RunTimeout)
	defer cancel()

	p.transition(StateSearching)

	var (
		rows      []*models.UploadRow
		metas     []*models.MetaRecord
		summary   Summary
		scrapeErr error
	)

	for result := range p.searcher.Search(ctx, p.cfg.Keyword, p.cfg.MaxResults) {
		if result.Err != nil && result.Listing == nil && result.URL == "" {
			// The search itself failed; nothing was emitted.
			scrapeErr = result.Err
			break
		}

		p.transition(StatePerListing)

		if result.Err != nil {
			summary.ListingsFail++
			meta := &models.MetaRecord{
				ListingID: result.URL,
				SourceURL: result.URL,
				Status:    models.StatusFailed,
				Error:     result.Err.Error(),
			}
			metas = append(metas, meta)
			p.recordManifest(&storage.ListingRecord{
				ListingID: result.URL,
				URL:       result.URL,
				Status:    models.StatusFailed,
				Error:     result.Err.Error(),
			})
			continue
		}

		listing := result.Listing
		summary.Listings++

		assets, err := p.media.ProcessListing(ctx, listing)
		if err != nil {
			// Download directory unusable; assets stay empty but the
			// row is still produced from the extracted listing.
			p.logger.Error("media processing failed", "listing", listing.ID, "error", err)
			assets = nil
		}

		row := p.mapper.Map(listing, assets)
		rows = append(rows, row)
		summary.Rows++

		mediaOK := 0
		for _, a := range assets {
			if a.Failed() {
				summary.MediaFailed++
			} else {
				mediaOK++
				summary.MediaOK++
			}
		}

		status := models.StatusOK
		var errMsg string
		if mediaOK < len(assets) {
			status = models.StatusMediaPartial
			errMsg = fmt.Sprintf("%d of %d media assets failed", len(assets)-mediaOK, len(assets))
		}

		metas = append(metas, &models.MetaRecord{
			ListingID:  listing.ID,
			SKU:        row.SKU,
			Title:      listing.Title,
			SourceURL:  listing.URL,
			MediaTotal: len(assets),
			MediaOK:    mediaOK,
			Status:     status,
			Error:      errMsg,
			ScrapedAt:  listing.ScrapedAt,
		})
		p.recordManifest(&storage.ListingRecord{
			ListingID: listing.ID,
			SKU:       row.SKU,
			URL:       listing.URL,
			Status:    status,
			Error:     errMsg,
			Assets:    assets,
		})

		p.logger.Info("listing processed",
			"id", listing.ID, "sku", row.SKU, "media_ok", mediaOK, "media_total", len(assets))
	}

	if summary.Rows == 0 {
		p.transition(StateFailed)
		if scrapeErr != nil {
			return nil, fmt.Errorf("scrape produced no listings: %w", scrapeErr)
		}
		return nil, fmt.Errorf("scrape produced no listings for keyword %q", p.cfg.Keyword)
	}

	p.transition(StateWriteOutput)

	// Output order is the scrape order, regardless of how media
	// completion interleaved.
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Index < rows[j].Index })

	if err := p.writer.Write(p.cfg.OutputPath, rows); err != nil {
		p.transition(StateFailed)
		return nil, fmt.Errorf("failed to write spreadsheet: %w", err)
	}
	if err := sheet.WriteMeta(p.cfg.MetaOutPath, metas); err != nil {
		p.transition(StateFailed)
		return nil, fmt.Errorf("failed to write metadata csv: %w", err)
	}

	p.transition(StateDone)
	p.logger.Info("run complete",
		"rows", summary.Rows, "listings_failed", summary.ListingsFail,
		"media_ok", summary.MediaOK, "media_failed", summary.MediaFailed)

	return &summary, nil
}

func (p *Pipeline) recordManifest(rec *storage.ListingRecord) {
	if p.manifest == nil {
		return
	}
	if err := p.manifest.Record(rec); err != nil {
		p.logger.Warn("manifest update failed", "error", err)
	}
}

func (p *Pipeline) transition(next State) {
	if p.state == next {
		return
	}
	p.logger.Debug("state transition", "from", string(p.state), "to", string(next))
	p.state = next
}
