package sheet

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"

	"mwlister/internal/models"
)

// WriteMeta writes the per-listing audit records to path as CSV, one
// record per processed listing, success or failure.
func WriteMeta(path string, records []*models.MetaRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metadata csv %s: %w", path, err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&records, f); err != nil {
		return fmt.Errorf("failed to write metadata csv: %w", err)
	}
	return nil
}
