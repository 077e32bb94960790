package storage

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mwlister/internal/models"
)

func TestManifestRecordAndReload(t *testing.T) {
	dir := t.TempDir()
	m := NewManifest(dir, "cable winder")

	require.NoError(t, m.Record(&ListingRecord{
		ListingID: "42",
		SKU:       "MW-0001",
		URL:       "https://makerworld.com/en/models/42",
		Status:    models.StatusOK,
		Assets: []models.MediaAsset{
			{SourceURL: "u1", Kind: models.MediaImage, LocalPath: "/dl/a.jpg"},
		},
	}))
	require.NoError(t, m.Record(&ListingRecord{
		ListingID: "43",
		Status:    models.StatusFailed,
		Error:     "navigation error",
	}))

	data, err := os.ReadFile(m.Path())
	require.NoError(t, err)

	var loaded Manifest
	require.NoError(t, json.Unmarshal(data, &loaded))

	assert.Equal(t, "cable winder", loaded.Keyword)
	assert.NotEmpty(t, loaded.RunID)
	require.Len(t, loaded.Listings, 2)
	assert.Equal(t, "MW-0001", loaded.Listings["42"].SKU)
	assert.Equal(t, models.StatusFailed, loaded.Listings["43"].Status)
	assert.False(t, loaded.Listings["42"].UpdatedAt.IsZero())
}

func TestManifestOverwritesListing(t *testing.T) {
	m := NewManifest(t.TempDir(), "k")

	require.NoError(t, m.Record(&ListingRecord{ListingID: "1", Status: models.StatusFailed}))
	require.NoError(t, m.Record(&ListingRecord{ListingID: "1", Status: models.StatusOK}))

	assert.Len(t, m.Listings, 1)
	assert.Equal(t, models.StatusOK, m.Listings["1"].Status)
}
