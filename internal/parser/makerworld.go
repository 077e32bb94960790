package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"mwlister/internal/models"
)

const maxGalleryURLs = 8

var (
	modelPathRE = regexp.MustCompile(`/(?:[a-z]{2}/)?models/(\d+)`)

	// Gallery noise: avatars, UI chrome, comment attachments.
	blockedURLParts = []string{"avatar", "logo", "icon", "/comment", "emote", "placeholder", ".svg", ".ico"}

	imageExts = []string{".jpg", ".jpeg", ".png", ".webp", ".avif"}
	videoExts = []string{".mp4", ".webm", ".mov"}
)

type MakerWorldParser struct {
	baseURL string
}

func NewMakerWorldParser(baseURL string) *MakerWorldParser {
	return &MakerWorldParser{baseURL: baseURL}
}

// ExtractModelLinks returns the unique model page URLs on a search
// results page, in document order.
func (p *MakerWorldParser) ExtractModelLinks(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	seen := make(map[string]bool)
	var links []string

	doc.Find("a[href*='/models/'], a[href*='/model/']").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		abs := p.absoluteURL(href)
		if !modelPathRE.MatchString(abs) {
			return
		}
		// Strip fragments and query noise so pagination duplicates collapse.
		if u, err := url.Parse(abs); err == nil {
			u.Fragment = ""
			u.RawQuery = ""
			abs = u.String()
		}
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	})

	return links, nil
}

// ParseListingPage extracts title, description and gallery media from a
// model page. The scrape index is filled in by the caller.
func (p *MakerWorldParser) ParseListingPage(html string, pageURL string) (*models.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	listing := models.NewListing(modelIDFromURL(pageURL), pageURL, 0)

	listing.Title = p.extractTitle(doc)
	if listing.Title == "" {
		listing.Title = pageURL
	}
	listing.Description = p.extractDescription(doc)
	listing.Media = p.extractGallery(doc)

	return listing, nil
}

func (p *MakerWorldParser) extractTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	if og, ok := doc.Find("meta[property='og:title']").Attr("content"); ok {
		return strings.TrimSpace(og)
	}
	return ""
}

func (p *MakerWorldParser) extractDescription(doc *goquery.Document) string {
	if md, ok := doc.Find("meta[name='description']").Attr("content"); ok {
		return strings.TrimSpace(md)
	}
	if og, ok := doc.Find("meta[property='og:description']").Attr("content"); ok {
		return strings.TrimSpace(og)
	}
	return ""
}

func (p *MakerWorldParser) extractGallery(doc *goquery.Document) []models.MediaAsset {
	assets := make([]models.MediaAsset, 0, maxGalleryURLs)
	seen := make(map[string]bool)

	doc.Find(".photo_show img, .photo_show video source, .photo_show video").Each(func(_ int, sel *goquery.Selection) {
		if len(assets) >= maxGalleryURLs {
			return
		}
		src, ok := sel.Attr("src")
		if !ok || src == "" {
			src, _ = sel.Attr("data-src")
		}
		if src == "" {
			return
		}

		u := p.absoluteURL(src)
		low := strings.ToLower(u)
		for _, blocked := range blockedURLParts {
			if strings.Contains(low, blocked) {
				return
			}
		}

		kind, ok := classifyMedia(low)
		if !ok || seen[u] {
			return
		}
		seen[u] = true
		assets = append(assets, models.MediaAsset{SourceURL: u, Kind: kind})
	})

	return assets
}

func (p *MakerWorldParser) absoluteURL(href string) string {
	switch {
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return strings.TrimRight(p.baseURL, "/") + href
	default:
		return href
	}
}

func classifyMedia(lowURL string) (models.MediaKind, bool) {
	// Drop query strings before matching the extension.
	if i := strings.IndexAny(lowURL, "?#"); i >= 0 {
		lowURL = lowURL[:i]
	}
	if strings.HasSuffix(lowURL, ".gif") {
		return models.MediaGIF, true
	}
	for _, ext := range videoExts {
		if strings.HasSuffix(lowURL, ext) {
			return models.MediaVideo, true
		}
	}
	for _, ext := range imageExts {
		if strings.HasSuffix(lowURL, ext) {
			return models.MediaImage, true
		}
	}
	return "", false
}

func modelIDFromURL(pageURL string) string {
	m := modelPathRE.FindStringSubmatch(pageURL)
	if len(m) == 2 {
		return m[1]
	}
	return pageURL
}
