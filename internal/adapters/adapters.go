// Package adapters defines the Source Adapter contract (C3): a pluggable
// per-platform ingestion module that maps external responses onto the
// canonical model.Post type and declares the capabilities it supports.
package adapters

import (
	"context"
	"strings"
	"time"

	"github.com/foundersignal/pipeline/internal/model"
)

// Capability is a feature tag an adapter declares.
type Capability uint16

const (
	CapSearch Capability = 1 << iota
	CapSortNew
	CapSortHot
	CapSortTop
	CapComments
	CapReviews
	CapRealtime
	CapHistorical
)

// capabilityNames backs String() for logging and the registry's capability
// queries.
var capabilityNames = map[Capability]string{
	CapSearch:     "SEARCH",
	CapSortNew:    "SORT_NEW",
	CapSortHot:    "SORT_HOT",
	CapSortTop:    "SORT_TOP",
	CapComments:   "COMMENTS",
	CapReviews:    "REVIEWS",
	CapRealtime:   "REALTIME",
	CapHistorical: "HISTORICAL",
}

// String renders a capability set as a comma-joined list, in declaration order.
func (c Capability) String() string {
	names := make([]string, 0, len(capabilityNames))
	for _, bit := range []Capability{CapSearch, CapSortNew, CapSortHot, CapSortTop, CapComments, CapReviews, CapRealtime, CapHistorical} {
		if c&bit != 0 {
			names = append(names, capabilityNames[bit])
		}
	}
	return strings.Join(names, ",")
}

// Has reports whether the capability set includes cap.
func (c Capability) Has(cap Capability) bool {
	return c&cap != 0
}

// ScrapeOptions carries adapter-specific scrape parameters. Fields not
// relevant to a given adapter are ignored.
type ScrapeOptions struct {
	// Sort selects "new", "hot", or "top" for adapters with sort modes.
	Sort string
	// TimeWindow bounds a "top" sort (e.g. "day", "week", "month", "all").
	TimeWindow string
	// Search, when true, runs target as a search query instead of a feed/listing name.
	Search bool
	// PostedAfter/PostedBefore bound a date-filtered listing.
	PostedAfter, PostedBefore time.Time
}

// Adapter is the per-platform ingestion contract from §4.2.
type Adapter interface {
	Name() string
	Platform() string
	Capabilities() Capability
	Configure(options map[string]string) error
	Scrape(ctx context.Context, target string, limit int, opts ScrapeOptions) ([]model.Post, error)
	HealthCheck(ctx context.Context) bool
}

// NormalizeID prefixes a raw upstream id with the adapter's source name so
// ids can never collide across sources, per normalization rule 2 and
// invariant 8.
func NormalizeID(source, rawID string) string {
	if strings.HasPrefix(rawID, source+"_") {
		return rawID
	}
	return source + "_" + rawID
}

// CoerceCreatedAt normalizes a possibly-zero timestamp to UTC "now" per
// normalization rule 3.
func CoerceCreatedAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
