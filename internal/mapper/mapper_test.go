package mapper

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mwlister/internal/models"
)

func commerce() models.CommerceParams {
	return models.CommerceParams{
		CategoryID: "101182",
		Brand:      "No Brand",
		Price:      decimal.RequireFromString("45000"),
		Stock:      20,
		WeightKG:   0.15,
		DimsCM:     [3]float64{10, 10, 3},
	}
}

func TestMapProducesOneRowPerListing(t *testing.T) {
	m := New(commerce(), "MW", "")

	listing := models.NewListing("42", "https://makerworld.com/en/models/42", 0)
	listing.Title = "  Cable   Winder  "
	listing.Description = "A nice winder.\nPrint profile: 0.2mm\nWorks with USB-C."

	assets := []models.MediaAsset{
		{SourceURL: "u1", Kind: models.MediaImage, LocalPath: "/dl/a.jpg"},
		{SourceURL: "u2", Kind: models.MediaGIF, LocalPath: "/dl/b.gif", ConvertedPath: "/dl/b.mp4", ConvertedKind: models.MediaVideo},
		{SourceURL: "u3", Kind: models.MediaImage, Error: "fetch failed"},
	}

	row := m.Map(listing, assets)

	assert.Equal(t, "MW-0001", row.SKU)
	assert.Equal(t, "Cable Winder - 3D Print", row.Name)
	assert.Equal(t, "A nice winder.\nWorks with USB-C.", row.Description)
	assert.Equal(t, "101182", row.CategoryID)
	assert.Equal(t, "No Brand", row.Brand)
	assert.True(t, row.Price.Equal(decimal.RequireFromString("45000")))
	assert.Equal(t, 20, row.Stock)
	assert.Equal(t, 150, row.WeightGrams)
	assert.Equal(t, 10, row.LengthCM)
	assert.Equal(t, 10, row.WidthCM)
	assert.Equal(t, 3, row.HeightCM)

	// Failed asset dropped; converted path preferred over the raw GIF.
	assert.Equal(t, []string{"/dl/a.jpg", "/dl/b.mp4"}, row.ImageURLs)
}

func TestSKUsUniqueAcrossRun(t *testing.T) {
	m := New(commerce(), "MW", "")

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		l := models.NewListing(fmt.Sprint(i), "u", i)
		row := m.Map(l, nil)
		require.False(t, seen[row.SKU], "duplicate SKU %s", row.SKU)
		seen[row.SKU] = true
	}
}

func TestSKUCollisionGetsSuffix(t *testing.T) {
	g := NewSKUGenerator("MW")

	assert.Equal(t, "MW-0003", g.For(2))
	assert.Equal(t, "MW-0003-2", g.For(2))
	assert.Equal(t, "MW-0003-3", g.For(2))
}

func TestSEOTitle(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"collapses whitespace", "Cable \n  Winder", "Cable Winder - 3D Print"},
		{"empty stays empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SEOTitle(tt.in))
		})
	}

	t.Run("capped at 255", func(t *testing.T) {
		long := ""
		for i := 0; i < 40; i++ {
			long += "verylongword "
		}
		assert.Len(t, SEOTitle(long), 255)
	})

	t.Run("cap keeps multi-byte runes intact", func(t *testing.T) {
		got := SEOTitle(strings.Repeat("ä", 200))
		assert.True(t, utf8.ValidString(got))
		assert.LessOrEqual(t, len(got), 255)
		assert.True(t, strings.HasPrefix(got, "ää"))
	})
}

func TestDescriptionCapRuneSafe(t *testing.T) {
	m := New(commerce(), "MW", "")

	listing := models.NewListing("7", "https://makerworld.com/en/models/7", 0)
	listing.Title = "Vase"
	listing.Description = strings.Repeat("ü", 2000)

	row := m.Map(listing, nil)
	assert.True(t, utf8.ValidString(row.Description))
	assert.LessOrEqual(t, len(row.Description), 3000)
}

func TestCleanDescription(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{
			name:     "html entities unescaped",
			in:       "Fits USB&nbsp;cables &amp; more",
			expected: "Fits USB cables & more",
		},
		{
			name:     "source lines removed",
			in:       "Great model\r\nDesign source: makerworld\nSource: somewhere\nFAQ\nStill here",
			expected: "Great model\nStill here",
		},
		{
			name:     "blank lines dropped",
			in:       "a\n\n\nb",
			expected: "a\nb",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanDescription(tt.in))
		})
	}
}

func TestDescriptionTemplate(t *testing.T) {
	tmpl := "{{title}}\n\n{{description}}\n\nPrinted on demand."
	m := New(commerce(), "MW", tmpl)

	listing := models.NewListing("1", "https://makerworld.com/en/models/1", 0)
	listing.Title = "Winder"
	listing.Description = "Spins well."

	row := m.Map(listing, nil)
	assert.Equal(t, "Winder\n\nSpins well.\n\nPrinted on demand.", row.Description)
}
