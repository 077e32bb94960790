// Package sheet reads the marketplace upload template and writes the
// filled spreadsheet plus the metadata CSV. The template file itself is
// never modified.
package sheet

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"

	"mwlister/internal/xerrors"
)

// ErrNoHeader means the workbook opened fine but no recognizable header
// block was found. The writer falls back to a minimal layout in that
// case, so callers should not treat it as fatal.
var ErrNoHeader = errors.New("no recognizable header row")

// Canonical column labels, matching the Shopee bulk-upload sheet.
const (
	ColCategory = "Kategori"
	ColName     = "Nama Produk"
	ColDesc     = "Deskripsi Produk"
	ColBrand    = "Merek"
	ColPrice    = "Harga"
	ColStock    = "Stok"
	ColSKU      = "SKU Induk"
	ColWeight   = "Berat (gram)"
	ColLength   = "Panjang Paket (cm)"
	ColWidth    = "Lebar Paket (cm)"
	ColHeight   = "Tinggi Paket (cm)"
	ColPhotos   = "Foto Produk"
)

// requiredColumns must resolve or be appended before rows are written.
var requiredColumns = []string{
	ColCategory, ColName, ColDesc, ColBrand, ColPrice, ColStock, ColSKU,
	ColWeight, ColLength, ColWidth, ColHeight, ColPhotos,
}

// headerAliases maps canonical labels to the normalized header variants
// seen across template revisions, Indonesian and English.
var headerAliases = map[string][]string{
	ColCategory: {"kategori", "category", "product category", "category id"},
	ColName:     {"nama produk", "product name", "name", "nama"},
	ColDesc:     {"deskripsi produk", "product description", "description"},
	ColBrand:    {"merek", "brand"},
	ColPrice:    {"harga", "price"},
	ColStock:    {"stok", "stock", "quantity"},
	ColSKU:      {"sku induk", "sku", "parent sku", "model sku"},
	ColWeight:   {"berat gram", "berat", "berat produk", "weight", "weight g", "weight gram"},
	ColLength:   {"panjang paket cm", "panjang cm", "panjang", "length", "length cm"},
	ColWidth:    {"lebar paket cm", "lebar cm", "lebar", "width", "width cm"},
	ColHeight:   {"tinggi paket cm", "tinggi cm", "tinggi", "height", "height cm"},
	ColPhotos:   {"foto produk", "images", "image urls", "product images", "photo", "photos", "gambar", "url gambar"},
}

// Per-image columns: "Foto Sampul", "Foto Produk 1".. in newer templates.
var imageLabelRE = regexp.MustCompile(`^foto (sampul|produk \d+)$`)

const (
	headerSearchRows = 50
	headerSearchCols = 160
	maxHeaderHeight  = 3
)

// Schema is the resolved layout of the template sheet: where the header
// row sits and which column holds each canonical field. Read-only after
// resolution.
type Schema struct {
	Sheet     string
	HeaderRow int            // 1-based row of the last header line
	Columns   map[string]int // canonical label -> 1-based column
	ImageCols []int          // dedicated per-image columns, sorted
	MaxCol    int
}

// Load opens the template read-only and resolves its schema. Used at
// startup to fail before any scraping when the template is unusable.
func Load(templatePath, sheetName string) (*Schema, error) {
	f, err := excelize.OpenFile(templatePath)
	if err != nil {
		return nil, xerrors.Config("failed to open template %s: %v", templatePath, err)
	}
	defer f.Close()

	return Resolve(f, sheetName)
}

// Resolve finds the header layout of the chosen sheet.
func Resolve(f *excelize.File, sheetName string) (*Schema, error) {
	sheet := pickSheet(f, sheetName)

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, xerrors.Config("failed to read sheet %q: %v", sheet, err)
	}

	schema, ok := findHeader(rows)
	if !ok {
		return nil, fmt.Errorf("%w in sheet %q", ErrNoHeader, sheet)
	}
	schema.Sheet = sheet
	return schema, nil
}

func pickSheet(f *excelize.File, sheetName string) string {
	sheets := f.GetSheetList()
	if sheetName != "" {
		for _, s := range sheets {
			if s == sheetName {
				return s
			}
		}
	}
	for _, s := range sheets {
		if s == "Template" {
			return s
		}
	}
	return sheets[0]
}

// findHeader scans the first rows for a header block of one to three
// stacked rows whose merged cell texts match the alias table.
func findHeader(rows [][]string) (*Schema, bool) {
	limit := len(rows)
	if limit > headerSearchRows {
		limit = headerSearchRows
	}

	for start := 0; start < limit; start++ {
		for height := 1; height <= maxHeaderHeight; height++ {
			if start+height > limit {
				break
			}

			merged := mergeHeaderRows(rows, start, height)

			found := make(map[string]int)
			for canonical, aliases := range headerAliases {
				for col, text := range merged {
					if text == "" {
						continue
					}
					for _, alias := range aliases {
						if text == alias {
							found[canonical] = col + 1
							break
						}
					}
					if _, ok := found[canonical]; ok {
						break
					}
				}
			}

			var imageCols []int
			for col, text := range merged {
				if imageLabelRE.MatchString(text) {
					imageCols = append(imageCols, col+1)
				}
			}

			_, hasCategory := found[ColCategory]
			_, hasName := found[ColName]
			_, hasDesc := found[ColDesc]
			_, hasPhotos := found[ColPhotos]
			if hasCategory && hasName && (hasDesc || hasPhotos || len(imageCols) > 0) {
				return &Schema{
					HeaderRow: start + height,
					Columns:   found,
					ImageCols: imageCols,
					MaxCol:    len(merged),
				}, true
			}
		}
	}
	return nil, false
}

func mergeHeaderRows(rows [][]string, start, height int) []string {
	width := 0
	for r := start; r < start+height; r++ {
		if len(rows[r]) > width {
			width = len(rows[r])
		}
	}
	if width > headerSearchCols {
		width = headerSearchCols
	}

	merged := make([]string, width)
	for c := 0; c < width; c++ {
		var parts []string
		for r := start; r < start+height; r++ {
			if c < len(rows[r]) {
				if v := strings.TrimSpace(rows[r][c]); v != "" {
					parts = append(parts, v)
				}
			}
		}
		merged[c] = normText(strings.Join(parts, " "))
	}
	return merged
}

var nonWordRE = regexp.MustCompile(`[^\pL\pN\s]`)

// normText folds a header cell to a comparable form: NFKC, lowercase,
// punctuation stripped, whitespace collapsed.
func normText(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ToLower(s)
	s = nonWordRE.ReplaceAllString(s, "")
	s = spaceRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

var spaceRE = regexp.MustCompile(`\s+`)
