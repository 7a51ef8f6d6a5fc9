package sync

import (
	"encoding/json"
	"fmt"
	"time"
)

const listingURL = "https://toolbox-data.anchore.io/grype/databases/listing.json"

// ListingResponse is the upstream advisory-DB listing document: for each
// schema version, the set of published builds. Field names mirror
// original_source/src/utils/grypedb/mod.rs's GrypeListingResponse.
type ListingResponse struct {
	Available map[int][]ListingEntry `json:"available"`
}

// ListingEntry is one published build of the advisory database.
type ListingEntry struct {
	Built    time.Time `json:"built"`
	Checksum string    `json:"checksum"`
	URL      string    `json:"url"`
	Version  int       `json:"version"`
}

// schemaVersion is the only schema this core knows how to read — matching
// the original's `assert_eq!(latest.version, 5)`.
const schemaVersion = 5

// Latest returns the newest published build for schemaVersion.
func (r *ListingResponse) Latest() (*ListingEntry, error) {
	builds, ok := r.Available[schemaVersion]
	if !ok || len(builds) == 0 {
		return nil, fmt.Errorf("no listing entries for schema version %d", schemaVersion)
	}
	latest := builds[0]
	for _, b := range builds[1:] {
		if b.Built.After(latest.Built) {
			latest = b
		}
	}
	return &latest, nil
}

func parseListing(body []byte) (*ListingResponse, error) {
	var r ListingResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("parse listing response: %w", err)
	}
	return &r, nil
}
