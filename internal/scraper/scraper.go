// Package scraper drives the browser through keyword search and model
// pages, emitting listings lazily in scrape order.
package scraper

import (
	"context"
	"log/slog"
	"net/url"

	"mwlister/internal/browser"
	"mwlister/internal/config"
	"mwlister/internal/models"
	"mwlister/internal/parser"
	"mwlister/internal/ratelimit"
	"mwlister/internal/xerrors"
)

// Result is one element of the scrape sequence. Either Listing or Err
// is set; a Result with only Err means that model page was skipped.
type Result struct {
	Listing *models.Listing
	URL     string
	Err     error
}

type Scraper struct {
	browser *browser.Browser
	parser  parser.Parser
	limiter *ratelimit.AdaptiveRateLimiter
	cfg     config.ScraperConfig
	logger  *slog.Logger
}

func New(b *browser.Browser, p parser.Parser, cfg config.ScraperConfig, logger *slog.Logger) *Scraper {
	return &Scraper{
		browser: b,
		parser:  p,
		limiter: ratelimit.NewAdaptiveRateLimiter(cfg.RateLimitMin, cfg.RateLimitMax),
		cfg:     cfg,
		logger:  logger.With("component", "scraper"),
	}
}

func (s *Scraper) searchURL(keyword string) string {
	return s.cfg.BaseURL + "/en/search/models?keyword=" + url.QueryEscape(keyword)
}

// Search returns a finite, non-restartable sequence of scrape results.
// It stops at the first of: max listings emitted, no more results, or an
// unrecoverable search navigation failure (reported as a final Result
// with Err set and no Listing). The channel is always closed.
func (s *Scraper) Search(ctx context.Context, keyword string, max int) <-chan Result {
	out := make(chan Result)

	go func() {
		defer close(out)

		links, err := s.collectLinks(ctx, keyword, max)
		if err != nil {
			select {
			case out <- Result{Err: err}:
			case <-ctx.Done():
			}
			return
		}

		s.logger.Info("search complete", "keyword", keyword, "links", len(links))

		for i, link := range links {
			if ctx.Err() != nil {
				return
			}
			listing, err := s.scrapeListing(ctx, link)
			if err != nil {
				s.limiter.RecordError()
				s.logger.Error("listing scrape failed", "url", link, "error", err)
				select {
				case out <- Result{URL: link, Err: err}:
				case <-ctx.Done():
					return
				}
				continue
			}
			s.limiter.RecordSuccess()
			listing.Index = i
			select {
			case out <- Result{Listing: listing, URL: link}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// collectLinks loads the search page and harvests model links, scrolling
// to trigger additional result batches until max links are found or a
// scroll round yields nothing new.
func (s *Scraper) collectLinks(ctx context.Context, keyword string, max int) ([]string, error) {
	searchURL := s.searchURL(keyword)
	s.logger.Info("opening search", "url", searchURL)

	page, err := s.browser.OpenPage(searchURL, s.cfg.MaxRetries)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	var links []string
	for round := 0; round < 10; round++ {
		if ctx.Err() != nil {
			return links, ctx.Err()
		}
		content, err := page.Content()
		if err != nil {
			return links, xerrors.Navigation(err, "search page content")
		}
		found, err := s.parser.ExtractModelLinks(content)
		if err != nil {
			return links, xerrors.Navigation(err, "search page parse")
		}
		if len(found) >= max {
			return found[:max], nil
		}
		if round > 0 && len(found) == len(links) {
			// No new results appeared, the page is exhausted.
			return found, nil
		}
		links = found
		s.browser.AutoScroll(page)
	}

	if len(links) > max {
		links = links[:max]
	}
	return links, nil
}

func (s *Scraper) scrapeListing(ctx context.Context, link string) (*models.Listing, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	page, err := s.browser.OpenPage(link, s.cfg.MaxRetries)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	s.browser.AutoScroll(page)

	content, err := page.Content()
	if err != nil {
		return nil, xerrors.Navigation(err, "listing page content: %s", link)
	}

	listing, err := s.parser.ParseListingPage(content, link)
	if err != nil {
		return nil, xerrors.Navigation(err, "listing page parse: %s", link)
	}

	s.logger.Info("listing scraped",
		"id", listing.ID, "title", listing.Title, "media", len(listing.Media))

	return listing, nil
}
