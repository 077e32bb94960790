package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mwlister/internal/config"
	"mwlister/internal/mapper"
	"mwlister/internal/models"
	"mwlister/internal/scraper"
	"mwlister/internal/storage"
	"mwlister/internal/xerrors"
)

type fakeSearcher struct {
	results []scraper.Result
}

func (f *fakeSearcher) Search(ctx context.Context, keyword string, max int) <-chan scraper.Result {
	out := make(chan scraper.Result)
	go func() {
		defer close(out)
		for _, r := range f.results {
			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

type fakeMedia struct {
	failURLs map[string]bool
}

func (f *fakeMedia) ProcessListing(_ context.Context, listing *models.Listing) ([]models.MediaAsset, error) {
	assets := make([]models.MediaAsset, len(listing.Media))
	copy(assets, listing.Media)
	for i := range assets {
		if f.failURLs[assets[i].SourceURL] {
			assets[i].Error = "simulated network error"
			continue
		}
		assets[i].LocalPath = "/dl/" + assets[i].SourceURL
		if assets[i].Kind == models.MediaGIF {
			assets[i].ConvertedKind = models.MediaVideo
			assets[i].ConvertedPath = assets[i].LocalPath + ".mp4"
		}
	}
	return assets, nil
}

type fakeWriter struct {
	rows []*models.UploadRow
	err  error
}

func (f *fakeWriter) Write(_ string, rows []*models.UploadRow) error {
	if f.err != nil {
		return f.err
	}
	f.rows = rows
	return nil
}

func mapperCommerce() models.CommerceParams {
	return models.CommerceParams{
		CategoryID: "101182",
		Brand:      "No Brand",
		Price:      decimal.RequireFromString("45000"),
		Stock:      20,
		WeightKG:   0.15,
		DimsCM:     [3]float64{10, 10, 3},
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Keyword:     "cable winder",
		MaxResults:  5,
		OutputPath:  filepath.Join(dir, "out.xlsx"),
		MetaOutPath: filepath.Join(dir, "meta.csv"),
		DownloadDir: dir,
		RunTimeout:  time.Minute,
		Commerce:    mapperCommerce(),
	}
}

func newPipeline(t *testing.T, cfg *config.Config, s Searcher, m MediaProcessor, w SheetWriter) *Pipeline {
	t.Helper()
	mp := mapper.New(cfg.Commerce, "MW", "")
	manifest := storage.NewManifest(cfg.DownloadDir, cfg.Keyword)
	return New(cfg, s, m, mp, w, manifest, slog.Default())
}

func gifListing(index int) *models.Listing {
	l := models.NewListing("42", "https://makerworld.com/en/models/42", index)
	l.Title = "Cable Winder"
	l.Description = "Spins well."
	l.Media = []models.MediaAsset{
		{SourceURL: "anim.gif", Kind: models.MediaGIF},
	}
	return l
}

func TestRunHappyPathWithGIF(t *testing.T) {
	cfg := testConfig(t)
	w := &fakeWriter{}
	p := newPipeline(t, cfg,
		&fakeSearcher{results: []scraper.Result{{Listing: gifListing(0)}}},
		&fakeMedia{}, w)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, p.State())

	assert.Equal(t, 1, summary.Rows)
	assert.Equal(t, 1, summary.MediaOK)
	assert.Zero(t, summary.MediaFailed)

	require.Len(t, w.rows, 1)
	assert.Equal(t, "MW-0001", w.rows[0].SKU)
	assert.Equal(t, []string{"/dl/anim.gif.mp4"}, w.rows[0].ImageURLs)

	data, err := os.ReadFile(cfg.MetaOutPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "MW-0001")
	assert.Contains(t, string(data), models.StatusOK)
}

func TestRunMediaFailureStillWritesRow(t *testing.T) {
	cfg := testConfig(t)
	w := &fakeWriter{}
	p := newPipeline(t, cfg,
		&fakeSearcher{results: []scraper.Result{{Listing: gifListing(0)}}},
		&fakeMedia{failURLs: map[string]bool{"anim.gif": true}}, w)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, p.State())

	require.Len(t, w.rows, 1)
	assert.Empty(t, w.rows[0].ImageURLs)
	assert.Equal(t, 1, summary.MediaFailed)

	data, err := os.ReadFile(cfg.MetaOutPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), models.StatusMediaPartial)
	assert.Contains(t, string(data), "1 of 1 media assets failed")
}

func TestRunSkippedListingRecorded(t *testing.T) {
	cfg := testConfig(t)
	w := &fakeWriter{}
	good := gifListing(1)
	p := newPipeline(t, cfg, &fakeSearcher{results: []scraper.Result{
		{URL: "https://makerworld.com/en/models/41", Err: xerrors.Navigation(errors.New("timeout"), "boom")},
		{Listing: good},
	}}, &fakeMedia{}, w)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ListingsFail)
	assert.Equal(t, 1, summary.Rows)
	require.Len(t, w.rows, 1)
	assert.Equal(t, "MW-0002", w.rows[0].SKU)

	data, err := os.ReadFile(cfg.MetaOutPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), models.StatusFailed)
}

func TestRunTotalScrapeFailure(t *testing.T) {
	cfg := testConfig(t)
	w := &fakeWriter{}
	p := newPipeline(t, cfg, &fakeSearcher{results: []scraper.Result{
		{Err: xerrors.Navigation(errors.New("cloudflare"), "search blocked")},
	}}, &fakeMedia{}, w)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, p.State())

	// No output artifacts on total failure.
	assert.Empty(t, w.rows)
	_, statErr := os.Stat(cfg.MetaOutPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunNoResultsFails(t *testing.T) {
	cfg := testConfig(t)
	p := newPipeline(t, cfg, &fakeSearcher{}, &fakeMedia{}, &fakeWriter{})

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, p.State())
}

func TestRunDeterministicOrdering(t *testing.T) {
	cfg := testConfig(t)
	w := &fakeWriter{}

	var results []scraper.Result
	for i := 0; i < 4; i++ {
		l := models.NewListing(string(rune('a'+i)), "u", i)
		l.Title = "Model"
		results = append(results, scraper.Result{Listing: l})
	}
	p := newPipeline(t, cfg, &fakeSearcher{results: results}, &fakeMedia{}, w)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, w.rows, 4)
	for i, row := range w.rows {
		assert.Equal(t, mapper.NewSKUGenerator("MW").For(i), row.SKU)
	}
}

func TestRunOrderingAcrossSKUWidths(t *testing.T) {
	cfg := testConfig(t)
	w := &fakeWriter{}

	// MW-9999 must come before MW-10000 even though the strings compare
	// the other way around.
	var results []scraper.Result
	for _, idx := range []int{9998, 9999} {
		l := models.NewListing(string(rune('a'+idx%26)), "u", idx)
		l.Title = "Model"
		results = append(results, scraper.Result{Listing: l})
	}
	p := newPipeline(t, cfg, &fakeSearcher{results: results}, &fakeMedia{}, w)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, w.rows, 2)
	assert.Equal(t, "MW-9999", w.rows[0].SKU)
	assert.Equal(t, "MW-10000", w.rows[1].SKU)
}

func TestRunWriteFailure(t *testing.T) {
	cfg := testConfig(t)
	p := newPipeline(t, cfg,
		&fakeSearcher{results: []scraper.Result{{Listing: gifListing(0)}}},
		&fakeMedia{}, &fakeWriter{err: errors.New("disk full")})

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, p.State())
}
