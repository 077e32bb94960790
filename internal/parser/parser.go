package parser

import (
	"mwlister/internal/models"
)

// Parser isolates all knowledge of the target site's markup. When the
// site changes, only the implementation behind this interface moves.
type Parser interface {
	ExtractModelLinks(html string) ([]string, error)
	ParseListingPage(html string, pageURL string) (*models.Listing, error)
}
