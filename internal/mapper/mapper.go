// Package mapper turns scraped listings plus the operator's commerce
// parameters into upload spreadsheet rows.
package mapper

import (
	"html"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"mwlister/internal/models"
)

const (
	maxTitleLen = 255
	maxDescLen  = 3000

	titleSuffix = " - 3D Print"
)

var (
	spaceRE = regexp.MustCompile(`\s+`)

	// Lines that leak the scrape source or site chrome into the listing.
	noiseLineREs = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*print\s*profile\s*:`),
		regexp.MustCompile(`(?i)^\s*design\s*source\s*:`),
		regexp.MustCompile(`(?i)^\s*source\s*:`),
		regexp.MustCompile(`(?i)\bFAQ\b\s*$`),
	}
)

type Mapper struct {
	commerce models.CommerceParams
	skus     *SKUGenerator
	descTmpl string
}

// New builds a Mapper. descTmpl is the raw description template content
// with {{title}}, {{description}} and {{source_url}} placeholders; empty
// means the cleaned scraped description is used as is.
func New(commerce models.CommerceParams, skuPrefix, descTmpl string) *Mapper {
	return &Mapper{
		commerce: commerce,
		skus:     NewSKUGenerator(skuPrefix),
		descTmpl: descTmpl,
	}
}

// Map produces exactly one UploadRow for the listing. Media URLs are the
// final local paths of successfully processed assets, in listing order.
func (m *Mapper) Map(listing *models.Listing, assets []models.MediaAsset) *models.UploadRow {
	urls := make([]string, 0, len(assets))
	for _, a := range assets {
		if a.Failed() || a.FinalPath() == "" {
			continue
		}
		urls = append(urls, a.FinalPath())
	}

	return &models.UploadRow{
		Index:       listing.Index,
		SKU:         m.skus.For(listing.Index),
		CategoryID:  m.commerce.CategoryID,
		Name:        SEOTitle(listing.Title),
		Description: m.description(listing),
		Brand:       m.commerce.Brand,
		Price:       m.commerce.Price,
		Stock:       m.commerce.Stock,
		WeightGrams: int(math.Round(m.commerce.WeightKG * 1000)),
		LengthCM:    int(math.Round(m.commerce.DimsCM[0])),
		WidthCM:     int(math.Round(m.commerce.DimsCM[1])),
		HeightCM:    int(math.Round(m.commerce.DimsCM[2])),
		ImageURLs:   urls,
	}
}

// SEOTitle collapses whitespace, appends the marketing suffix and caps
// the result at the marketplace's title limit.
func SEOTitle(title string) string {
	t := spaceRE.ReplaceAllString(strings.TrimSpace(title), " ")
	if t == "" {
		return ""
	}
	t += titleSuffix
	return truncate(t, maxTitleLen)
}

// truncate caps s at max bytes without cutting through a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// CleanDescription unescapes HTML entities, normalizes newlines and
// drops lines that reference the scrape source.
func CleanDescription(desc string) string {
	if desc == "" {
		return ""
	}
	text := html.UnescapeString(desc)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var cleaned []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isNoiseLine(line) {
			continue
		}
		cleaned = append(cleaned, line)
	}
	return strings.Join(cleaned, "\n")
}

func isNoiseLine(line string) bool {
	for _, re := range noiseLineREs {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func (m *Mapper) description(listing *models.Listing) string {
	cleaned := CleanDescription(listing.Description)

	out := cleaned
	if m.descTmpl != "" {
		out = m.descTmpl
		out = strings.ReplaceAll(out, "{{title}}", strings.TrimSpace(listing.Title))
		out = strings.ReplaceAll(out, "{{description}}", cleaned)
		out = strings.ReplaceAll(out, "{{source_url}}", listing.URL)
	}

	out = strings.TrimSpace(out)
	return truncate(out, maxDescLen)
}
