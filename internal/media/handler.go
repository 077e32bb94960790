// Package media downloads listing media into the download directory and
// converts GIFs to MP4. Per-asset failures are recorded on the asset and
// never abort the listing.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"mwlister/internal/config"
	"mwlister/internal/models"
)

type Handler struct {
	fetcher    Fetcher
	transcoder Transcoder
	dir        string
	allowGIF   bool
	limit      int
	logger     *slog.Logger
}

func NewHandler(fetcher Fetcher, transcoder Transcoder, cfg config.MediaConfig, dir string, allowGIF bool, logger *slog.Logger) *Handler {
	return &Handler{
		fetcher:    fetcher,
		transcoder: transcoder,
		dir:        dir,
		allowGIF:   allowGIF,
		limit:      cfg.ConcurrentLimit,
		logger:     logger.With("component", "media"),
	}
}

// ProcessListing downloads every asset of the listing with bounded
// concurrency and returns the assets in their original order, each with
// local paths or an error string filled in. The returned error is only
// non-nil when the download directory itself is unusable.
func (h *Handler) ProcessListing(ctx context.Context, listing *models.Listing) ([]models.MediaAsset, error) {
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download directory %s: %w", h.dir, err)
	}

	assets := make([]models.MediaAsset, len(listing.Media))
	copy(assets, listing.Media)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.limit)

	for i := range assets {
		i := i
		g.Go(func() error {
			h.processAsset(gctx, listing.ID, i, &assets[i])
			return nil
		})
	}
	g.Wait()

	return assets, nil
}

func (h *Handler) processAsset(ctx context.Context, listingID string, idx int, asset *models.MediaAsset) {
	base := fmt.Sprintf("%s_%02d", listingID, idx)

	local, err := h.fetcher.Fetch(ctx, asset.SourceURL, h.dir, base)
	if err != nil {
		asset.Error = err.Error()
		h.logger.Error("media download failed", "url", asset.SourceURL, "error", err)
		return
	}
	asset.LocalPath = local
	h.logger.Info("media downloaded", "url", asset.SourceURL, "path", local)

	if asset.Kind != models.MediaGIF || h.allowGIF {
		return
	}

	dst := mp4Path(local)
	if err := h.transcoder.GIFToMP4(ctx, local, dst); err != nil {
		asset.Error = err.Error()
		h.logger.Error("gif conversion failed", "path", local, "error", err)
		return
	}
	asset.ConvertedKind = models.MediaVideo
	asset.ConvertedPath = dst
	h.logger.Info("gif converted", "src", local, "dst", dst)
}

func mp4Path(gifPath string) string {
	if i := strings.LastIndex(gifPath, "."); i > 0 {
		return gifPath[:i] + ".mp4"
	}
	return gifPath + ".mp4"
}
